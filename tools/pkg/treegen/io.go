package treegen

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

func ReadStakeMetaCollection(path string) (*StakeMetaCollection, error) {
	var coll StakeMetaCollection
	if err := readJSON(path, &coll); err != nil {
		return nil, fmt.Errorf("failed to read stake meta collection: %w", err)
	}
	return &coll, nil
}

func ReadGeneratedMerkleTreeCollection(path string) (*GeneratedMerkleTreeCollection, error) {
	var coll GeneratedMerkleTreeCollection
	if err := readJSON(path, &coll); err != nil {
		return nil, fmt.Errorf("failed to read merkle tree collection: %w", err)
	}
	return &coll, nil
}

func WriteGeneratedMerkleTreeCollection(path string, coll *GeneratedMerkleTreeCollection) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := EncodeJSON(f, coll); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeJSON writes v as indented JSON.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
