package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		assert.Equal(t, tt.wantErr, err != nil, "ValidatePassword(%q) error = %v", tt.password, err)
	}
}

func TestParseItemStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   ItemStatus
		wantOK bool
	}{
		{"Available", ItemStatusAvailable, true},
		{"available", ItemStatusAvailable, true},
		{"Claimed", ItemStatusClaimed, true},
		{"Removed", ItemStatusRemoved, true},
		{"No longer available", ItemStatusRemoved, true},
		{"  no longer AVAILABLE ", ItemStatusRemoved, true},
		{"gone", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseItemStatus(tt.in)
		assert.Equal(t, tt.wantOK, ok, "ParseItemStatus(%q) ok", tt.in)
		assert.Equal(t, tt.want, got, "ParseItemStatus(%q)", tt.in)
	}
}

func TestRequestStatusOpen(t *testing.T) {
	assert.True(t, RequestStatusPending.Open())
	assert.True(t, RequestStatusAccepted.Open())
	assert.False(t, RequestStatusRejected.Open())
}
