package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory(t *testing.T) {
	tests := []struct {
		dirType  string
		wantType string
		wantErr  bool
	}{
		{dirType: "sqlite", wantType: "sqlite"},
		{dirType: "mysql", wantType: "mysql"},
		{dirType: "postgres", wantType: "postgres"},
		{dirType: "ldap", wantType: "ldap"},
		{dirType: "file", wantType: "file"},
		{dirType: "mock", wantType: "mock"},
		{dirType: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.dirType, func(t *testing.T) {
			dir, err := Factory(Config{Type: tt.dirType})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, dir.Type())
		})
	}
}

func TestAccountStorageAvailable(t *testing.T) {
	tests := []struct {
		name         string
		account      Account
		defaultQuota int64
		want         int64
	}{
		{
			name:         "explicit quota",
			account:      Account{Quota: 1000, StorageUsed: 200},
			defaultQuota: 5000,
			want:         800,
		},
		{
			name:         "zero quota falls back to default",
			account:      Account{StorageUsed: 100},
			defaultQuota: 5000,
			want:         4900,
		},
		{
			name:         "over quota clamps to zero",
			account:      Account{Quota: 500, StorageUsed: 900},
			defaultQuota: 5000,
			want:         0,
		},
		{
			name:         "exactly full",
			account:      Account{Quota: 500, StorageUsed: 500},
			defaultQuota: 5000,
			want:         0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.account.StorageAvailable(tt.defaultQuota))
		})
	}
}
