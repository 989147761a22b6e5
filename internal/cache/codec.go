package cache

import "playersync/pkg/replication"

// BalanceCodec stores balances as full-precision decimal strings
type BalanceCodec struct{}

func (BalanceCodec) Encode(v float64) string { return replication.FormatBalance(v) }

func (BalanceCodec) Decode(s string) (float64, error) { return replication.ParseBalance(s) }

// StringCodec stores strings as they are. Snapshot blobs use it.
type StringCodec struct{}

func (StringCodec) Encode(v string) string { return v }

func (StringCodec) Decode(s string) (string, error) { return s, nil }
