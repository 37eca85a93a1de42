package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/tipdist/tools/pkg/treegen"
)

type GenerateTreesConfig struct {
	StakeMetaPath string
	OutputPath    string
	Concurrency   int
}

// GenerateTrees builds the merkle tree collection for a stake meta snapshot,
// checks it, and writes it to OutputPath.
func GenerateTrees(ctx context.Context, log *slog.Logger, cfg GenerateTreesConfig) (*treegen.GeneratedMerkleTreeCollection, error) {
	in, err := treegen.ReadStakeMetaCollection(cfg.StakeMetaPath)
	if err != nil {
		return nil, err
	}

	gen, err := treegen.NewGenerator(treegen.GeneratorConfig{Logger: log, Concurrency: cfg.Concurrency})
	if err != nil {
		return nil, err
	}
	coll, err := gen.Generate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to generate trees: %w", err)
	}
	if err := treegen.Verify(coll); err != nil {
		return nil, fmt.Errorf("generated trees failed verification: %w", err)
	}
	if err := treegen.WriteGeneratedMerkleTreeCollection(cfg.OutputPath, coll); err != nil {
		return nil, err
	}

	log.Info("admin: generated merkle trees", "epoch", coll.Epoch, "trees", len(coll.GeneratedMerkleTrees), "output", cfg.OutputPath)
	return coll, nil
}

// VerifyTrees re-derives every root and proof of a generated collection.
func VerifyTrees(log *slog.Logger, path string) error {
	coll, err := treegen.ReadGeneratedMerkleTreeCollection(path)
	if err != nil {
		return err
	}
	if err := treegen.Verify(coll); err != nil {
		return err
	}
	var nodes int
	for _, t := range coll.GeneratedMerkleTrees {
		nodes += len(t.TreeNodes)
	}
	log.Info("admin: merkle trees verified", "epoch", coll.Epoch, "trees", len(coll.GeneratedMerkleTrees), "nodes", nodes)
	return nil
}

type UploadTreesConfig struct {
	Path     string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// UploadTrees verifies a generated collection and uploads it to S3. It
// returns the object key.
func UploadTrees(ctx context.Context, log *slog.Logger, cfg UploadTreesConfig) (string, error) {
	coll, err := treegen.ReadGeneratedMerkleTreeCollection(cfg.Path)
	if err != nil {
		return "", err
	}
	if err := treegen.Verify(coll); err != nil {
		return "", fmt.Errorf("refusing to upload %s: %w", cfg.Path, err)
	}

	client, err := treegen.NewS3Client(ctx, cfg.Region, cfg.Endpoint)
	if err != nil {
		return "", err
	}
	uploader, err := treegen.NewS3Uploader(treegen.S3UploaderConfig{
		Logger: log,
		Client: client,
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	})
	if err != nil {
		return "", err
	}
	return uploader.Upload(ctx, coll)
}
