package store

import "testing"

import "github.com/stretchr/testify/assert"

func TestNullableJSON(t *testing.T) {
	assert.Nil(t, nullableJSON(nil))
	assert.Nil(t, nullableJSON([]byte{}))
	assert.Equal(t, []byte(`{"a":1}`), nullableJSON([]byte(`{"a":1}`)))
}
