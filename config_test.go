package identity_test

import (
	"testing"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := identity.DefaultConfig()

	assert.Equal(t, "identity", cfg.Table())
	assert.Equal(t, identity.DefaultColumns, cfg.ColumnSet())
	assert.Equal(t, "+1 day", cfg.ApproveTTL)
	assert.Equal(t, "-30 days", cfg.PurgeOlderThan)
	assert.NoError(t, cfg.Validate())

	cfg.TablePrefix = "app_"
	assert.Equal(t, "app_identity", cfg.Table())
}

func TestConfigAddColumn(t *testing.T) {
	cfg := identity.Config{}
	cfg.AddColumn("firstname").AddColumn("firstname")

	cols := cfg.ColumnSet()
	assert.Len(t, cols, len(identity.DefaultColumns)+1)
	assert.Equal(t, "firstname", cols[len(cols)-1])
}

func TestValidateColumns(t *testing.T) {
	err := identity.ValidateColumns([]string{"id", "login", "email"})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Equal(t, identity.TextCodeMissingColumns, richErr.TextCode)
	assert.Equal(t, `this column(s) are required: "hash", "role", "active"`, richErr.Message)
	assert.Equal(t, []string{"hash", "role", "active"}, richErr.Metadata["missing"])

	assert.NoError(t, identity.ValidateColumns(identity.RequiredColumns))
}

func TestConfigSetColumns(t *testing.T) {
	cfg := identity.DefaultConfig()

	err := cfg.SetColumns([]string{"id", "login"})
	assert.Error(t, err)
	assert.Equal(t, identity.DefaultColumns, cfg.ColumnSet(), "invalid set is not applied")

	err = cfg.SetColumns([]string{"id", "login", "hash", "role", "active", "nickname"})
	assert.NoError(t, err)
	assert.Contains(t, cfg.ColumnSet(), "nickname")
	assert.NotContains(t, cfg.ColumnSet(), "email")
}
