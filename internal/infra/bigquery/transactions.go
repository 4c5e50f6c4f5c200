package bigquery

import (
	"fmt"

	bq "github.com/dvloznov/pocketbook/internal/bigquery"
)

// TransactionRow is re-exported from the shared package.
type TransactionRow = bq.TransactionRow

const (
	defaultDataset = "pocketbook"
	defaultTable   = "transactions"
	dateFormat     = "2006-01-02"
)

// TableConfig locates the backup table.
type TableConfig struct {
	Project string
	Dataset string
	Table   string
}

func (c TableConfig) withDefaults() TableConfig {
	if c.Dataset == "" {
		c.Dataset = defaultDataset
	}
	if c.Table == "" {
		c.Table = defaultTable
	}
	return c
}

// FullName returns the backtick-quoted table name for SQL.
func (c TableConfig) FullName() string {
	c = c.withDefaults()
	return fmt.Sprintf("`%s.%s.%s`", c.Project, c.Dataset, c.Table)
}
