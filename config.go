package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultTableName is the identity table name without prefix
	DefaultTableName = "identity"
	// ActivityTableName is the activity log table, declared on ActivityRecord
	ActivityTableName = "identity_activity"
)

// RequiredColumns must be part of any configured column set
var RequiredColumns = []string{FieldID, FieldLogin, FieldHash, FieldRole, FieldActive}

// DefaultColumns is the column set selected when none is configured
var DefaultColumns = []string{
	FieldID, FieldLogin, FieldHash, FieldUsername, FieldEmail, FieldRole, FieldActive, FieldAdded,
}

var standardColumns = map[string]bool{
	FieldID: true, FieldLogin: true, FieldHash: true, FieldUsername: true,
	FieldEmail: true, FieldRole: true, FieldActive: true, FieldAdded: true,
}

// Config holds identity store options
type Config struct {
	TablePrefix    string   `json:"table_prefix" yaml:"tablePrefix"`
	TableName      string   `json:"table_name" yaml:"tableName"`
	Columns        []string `json:"columns" yaml:"columns"`
	ApproveTTL     string   `json:"approve_ttl" yaml:"approveTTL"`
	ForgottenTTL   string   `json:"forgotten_ttl" yaml:"forgottenTTL"`
	PurgeOlderThan string   `json:"purge_older_than" yaml:"purgeOlderThan"`
	BcryptCost     int      `json:"bcrypt_cost" yaml:"bcryptCost"`
}

// DefaultConfig returns a config with the default table and columns
func DefaultConfig() Config {
	return Config{
		TableName:      DefaultTableName,
		Columns:        append([]string(nil), DefaultColumns...),
		ApproveTTL:     "+1 day",
		ForgottenTTL:   "+1 hour",
		PurgeOlderThan: "-30 days",
	}
}

// Table returns the prefixed identity table name
func (c Config) Table() string {
	name := c.TableName
	if name == "" {
		name = DefaultTableName
	}
	return c.TablePrefix + name
}

// ColumnSet returns the configured columns or the defaults
func (c Config) ColumnSet() []string {
	if len(c.Columns) == 0 {
		return append([]string(nil), DefaultColumns...)
	}
	return append([]string(nil), c.Columns...)
}

// AddColumn appends a caller defined column
func (c *Config) AddColumn(name string) *Config {
	if len(c.Columns) == 0 {
		c.Columns = append([]string(nil), DefaultColumns...)
	}
	for _, col := range c.Columns {
		if col == name {
			return c
		}
	}
	c.Columns = append(c.Columns, name)
	return c
}

// SetColumns replaces the column set after checking required columns
func (c *Config) SetColumns(columns []string) error {
	if err := ValidateColumns(columns); err != nil {
		return err
	}
	c.Columns = append([]string(nil), columns...)
	return nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	return ValidateColumns(c.ColumnSet())
}

// ValidateColumns fails listing every required column missing from columns
func ValidateColumns(columns []string) error {
	present := make(map[string]bool, len(columns))
	for _, col := range columns {
		present[col] = true
	}

	var missing []string
	for _, req := range RequiredColumns {
		if !present[req] {
			missing = append(missing, req)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	return goerrors.New(
		`this column(s) are required: "`+strings.Join(missing, `", "`)+`"`,
		goerrors.CategoryValidation,
	).
		WithTextCode(TextCodeMissingColumns).
		WithMetadata(map[string]any{"missing": missing})
}

func splitColumns(columns []string) (standard, extra []string) {
	for _, col := range columns {
		if standardColumns[col] {
			standard = append(standard, col)
		} else {
			extra = append(extra, col)
		}
	}
	return standard, extra
}
