package allocation

import (
	"errors"
	"fmt"
)

// ConfigurationError means an asset has no template rules on the reference path
type ConfigurationError struct {
	AssetID int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no template for asset %d", e.AssetID)
}

// NotFoundError means a ticker could not be resolved to an asset
type NotFoundError struct {
	Ticker string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("asset not found for ticker %q", e.Ticker)
}

// StoreError wraps any failure of the ledger store. The operation was rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// classify leaves typed engine errors alone and wraps everything else in a StoreError
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
