package fetcher

import "errors"

var (
	// ErrRPCURLRequired indicates a chain without rpc_url.
	ErrRPCURLRequired = errors.New("rpc url not configured")
	// ErrUnknownChain indicates a venue references a chain with no reader.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrMissingPrice indicates the price API omitted a requested id.
	ErrMissingPrice = errors.New("price missing from response")
)
