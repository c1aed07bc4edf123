package db

import (
	"context"

	"go.uber.org/zap"
)

// CheckSchema logs the columns and indexes of the tables the store uses.
func (s *Store) CheckSchema(ctx context.Context) {
	for _, table := range []string{"tips", "profiles"} {
		s.checkTableStructure(ctx, table)
		s.checkTableIndexes(ctx, table)
	}
}

func (s *Store) checkTableStructure(ctx context.Context, table string) {
	var result []struct {
		ColumnName string
		DataType   string
	}

	err := s.db.WithContext(ctx).
		Raw("SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ?", table).
		Scan(&result).Error
	if err != nil {
		s.logger.Error("Error getting table structure", zap.String("table", table), zap.Error(err))
		return
	}
	if len(result) == 0 {
		s.logger.Warn("Table not found", zap.String("table", table))
		return
	}
	for _, col := range result {
		s.logger.Debug("Column info",
			zap.String("table", table),
			zap.String("column", col.ColumnName),
			zap.String("type", col.DataType))
	}
}

func (s *Store) checkTableIndexes(ctx context.Context, table string) {
	var result []struct {
		IndexName string
		IndexDef  string
	}

	err := s.db.WithContext(ctx).
		Raw("SELECT indexname AS index_name, indexdef AS index_def FROM pg_indexes WHERE tablename = ?", table).
		Scan(&result).Error
	if err != nil {
		s.logger.Error("Error checking table indexes", zap.String("table", table), zap.Error(err))
		return
	}
	for _, idx := range result {
		s.logger.Debug("Index info",
			zap.String("table", table),
			zap.String("index", idx.IndexName),
			zap.String("definition", idx.IndexDef))
	}
}
