package content

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/TheMichaelB/blockbox/internal/models"
)

// ComputeCID returns the CIDv1 (raw codec, sha2-256) of data.
func ComputeCID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// ParseCID validates a content identifier string.
func ParseCID(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, &models.StoreError{
			Kind: models.StoreErrInvalid,
			Op:   "parse",
			CID:  s,
			Err:  err,
		}
	}
	return c, nil
}

// VerifyCID checks that data hashes to the multihash carried by id. Only raw
// codec CIDs address the bytes directly; other codecs name a DAG root and are
// accepted unchecked.
func VerifyCID(id string, data []byte) error {
	c, err := ParseCID(id)
	if err != nil {
		return err
	}
	if c.Type() != cid.Raw {
		return nil
	}

	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return &models.StoreError{Kind: models.StoreErrInvalid, Op: "verify", CID: id, Err: err}
	}

	sum, err := multihash.Sum(data, decoded.Code, decoded.Length)
	if err != nil {
		return &models.StoreError{Kind: models.StoreErrInvalid, Op: "verify", CID: id, Err: err}
	}

	if string(sum) != string(c.Hash()) {
		return &models.StoreError{
			Kind: models.StoreErrInvalid,
			Op:   "verify",
			CID:  id,
			Err:  fmt.Errorf("content does not match digest"),
		}
	}
	return nil
}
