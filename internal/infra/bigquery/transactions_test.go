package bigquery

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestTableConfigFullName(t *testing.T) {
	assert.Equal(t, "`proj.pocketbook.transactions`", TableConfig{Project: "proj"}.FullName())
	assert.Equal(t, "`proj.ds.tx`", TableConfig{Project: "proj", Dataset: "ds", Table: "tx"}.FullName())
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(fmt.Errorf("create: %w", &googleapi.Error{Code: http.StatusConflict})))
	assert.False(t, isAlreadyExists(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isAlreadyExists(errors.New("boom")))
}
