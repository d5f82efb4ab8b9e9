package crypto_test

import (
	"fmt"

	"github.com/TheMichaelB/blockbox/internal/crypto"
	"github.com/TheMichaelB/blockbox/internal/models"
)

func ExampleProvider_DeriveKey() {
	provider := crypto.NewProvider()

	key, err := provider.DeriveKey("0xABC")
	if err != nil {
		panic(err)
	}

	fmt.Printf("Key length: %d bytes\n", len(key))
	fmt.Printf("Fingerprint: %s\n", crypto.KeyFingerprint(key))
	// Output:
	// Key length: 32 bytes
	// Fingerprint: 630201357a99c309
}

func ExampleProvider_EncryptFile() {
	provider := crypto.NewProvider()

	key, err := provider.DeriveKey("0xABC")
	if err != nil {
		panic(err)
	}

	enc, err := provider.EncryptFile(&models.File{
		Name:     "hello.txt",
		Data:     []byte("hello world"),
		MimeType: "text/plain",
	}, key)
	if err != nil {
		fmt.Printf("Encryption failed: %v\n", err)
		return
	}

	dec, err := provider.DecryptFile(enc.Ciphertext, key, enc.Name, enc.MimeType)
	if err != nil {
		fmt.Printf("Decryption failed: %v\n", err)
		return
	}

	fmt.Printf("%s (%d bytes): %s\n", dec.Name, enc.Size, dec.Data)
	// Output: hello.txt (11 bytes): hello world
}

func ExampleSealWithPassword() {
	sealed, err := crypto.SealWithPassword([]byte("backup"), "hunter2")
	if err != nil {
		panic(err)
	}

	opened, err := crypto.OpenWithPassword(sealed, "hunter2")
	if err != nil {
		panic(err)
	}

	fmt.Println(string(opened))
	// Output: backup
}
