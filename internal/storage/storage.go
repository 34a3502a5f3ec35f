package storage

import "liquidityZap/internal/model"

// Storage defines a sink for zap records.
type Storage interface {
	PutZapBatch(records []model.ZapRecord) error
}
