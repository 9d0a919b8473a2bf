package rpc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RuntimeVersion is the result of state_getRuntimeVersion.
type RuntimeVersion struct {
	SpecName           string          `json:"specName"`
	ImplName           string          `json:"implName"`
	AuthoringVersion   uint32          `json:"authoringVersion"`
	SpecVersion        uint32          `json:"specVersion"`
	ImplVersion        uint32          `json:"implVersion"`
	TransactionVersion uint32          `json:"transactionVersion"`
	StateVersion       uint8           `json:"stateVersion"`
	Apis               [][]interface{} `json:"apis"`
}

// Header is the subset of chain_getHeader the signing flow needs.
type Header struct {
	ParentHash     string `json:"parentHash"`
	Number         string `json:"number"`
	StateRoot      string `json:"stateRoot"`
	ExtrinsicsRoot string `json:"extrinsicsRoot"`
}

// BlockNumber parses the hex encoded header number.
func (h *Header) BlockNumber() (uint64, error) {
	n := strings.TrimPrefix(strings.TrimPrefix(h.Number, "0x"), "0X")
	if n == "" {
		return 0, fmt.Errorf("empty block number")
	}
	return strconv.ParseUint(n, 16, 64)
}

func atParams(at string) []interface{} {
	if at == "" {
		return nil
	}
	return []interface{}{at}
}

// GetMetadata returns the 0x hex encoded runtime metadata at the given block (latest when empty).
func (c *Client) GetMetadata(ctx context.Context, at string) (string, error) {
	var metadata string
	if err := c.CallInto(ctx, &metadata, "state_getMetadata", atParams(at)...); err != nil {
		return "", err
	}
	return metadata, nil
}

// GetRuntimeVersion calls state_getRuntimeVersion at the given block hash, or the best block when at is empty.
func (c *Client) GetRuntimeVersion(ctx context.Context, at string) (*RuntimeVersion, error) {
	var version RuntimeVersion
	if err := c.CallInto(ctx, &version, "state_getRuntimeVersion", atParams(at)...); err != nil {
		return nil, err
	}
	return &version, nil
}

// GetBlockHash returns the hash of the given block, or of the best block when number is nil.
func (c *Client) GetBlockHash(ctx context.Context, number *uint64) (string, error) {
	var params []interface{}
	if number != nil {
		params = append(params, *number)
	}
	var hash string
	if err := c.CallInto(ctx, &hash, "chain_getBlockHash", params...); err != nil {
		return "", err
	}
	return hash, nil
}

// GetGenesisHash returns the hash of block 0.
func (c *Client) GetGenesisHash(ctx context.Context) (string, error) {
	genesis := uint64(0)
	return c.GetBlockHash(ctx, &genesis)
}

// GetFinalizedHead returns the hash of the latest finalized block.
func (c *Client) GetFinalizedHead(ctx context.Context) (string, error) {
	var hash string
	if err := c.CallInto(ctx, &hash, "chain_getFinalizedHead"); err != nil {
		return "", err
	}
	return hash, nil
}

// GetHeader returns the header of the given block (best block when empty).
func (c *Client) GetHeader(ctx context.Context, hash string) (*Header, error) {
	var header Header
	if err := c.CallInto(ctx, &header, "chain_getHeader", atParams(hash)...); err != nil {
		return nil, err
	}
	return &header, nil
}

// AccountNextIndex returns the next usable nonce for an SS58 address, including pool transactions.
func (c *Client) AccountNextIndex(ctx context.Context, address string) (uint64, error) {
	var nonce uint64
	if err := c.CallInto(ctx, &nonce, "system_accountNextIndex", address); err != nil {
		return 0, err
	}
	return nonce, nil
}

// SubmitExtrinsic broadcasts a fully signed, 0x hex encoded extrinsic and returns its hash.
func (c *Client) SubmitExtrinsic(ctx context.Context, extrinsicHex string) (string, error) {
	var hash string
	if err := c.CallInto(ctx, &hash, "author_submitExtrinsic", extrinsicHex); err != nil {
		return "", err
	}
	return hash, nil
}
