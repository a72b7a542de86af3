package database

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxOpenConns != 25 {
		t.Errorf("expected MaxOpenConns=25, got %d", config.MaxOpenConns)
	}
	if config.MaxIdleConns != 5 {
		t.Errorf("expected MaxIdleConns=5, got %d", config.MaxIdleConns)
	}
	if config.RetryAttempts != 3 {
		t.Errorf("expected RetryAttempts=3, got %d", config.RetryAttempts)
	}
	if config.MigrationsPath != "migrations" {
		t.Errorf("expected default MigrationsPath=migrations, got %q", config.MigrationsPath)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				DSN:             "postgres://localhost:5432/test",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 1 * time.Minute,
				RetryAttempts:   3,
				RetryDelay:      1 * time.Second,
			},
			wantErr: false,
		},
		{
			name:    "empty DSN",
			config:  &Config{DSN: ""},
			wantErr: true,
		},
		{
			name: "applies defaults for missing values",
			config: &Config{
				DSN:           "postgres://localhost:5432/test",
				RetryAttempts: -1,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if tt.config.MaxOpenConns <= 0 {
					t.Error("expected MaxOpenConns to be set to default")
				}
				if tt.config.MigrationsPath == "" {
					t.Error("expected MigrationsPath to be set to default")
				}
			}
		})
	}
}

func TestConfigIdleConnsConstraint(t *testing.T) {
	config := &Config{
		DSN:          "postgres://localhost:5432/test",
		MaxOpenConns: 5,
		MaxIdleConns: 10,
	}

	if err := config.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if config.MaxIdleConns > config.MaxOpenConns {
		t.Errorf("expected MaxIdleConns (%d) <= MaxOpenConns (%d)", config.MaxIdleConns, config.MaxOpenConns)
	}
}

func TestConnectInvalidDSN(t *testing.T) {
	config := &Config{
		DSN:           "invalid-dsn",
		RetryAttempts: 0,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Connect(ctx, config); err == nil {
		t.Error("expected error for invalid DSN, got nil")
	}
}

func TestConnectContextCancellation(t *testing.T) {
	config := &Config{
		DSN:           "postgres://nonexistent:5432/test",
		RetryAttempts: 5,
		RetryDelay:    100 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := Connect(ctx, config); err == nil {
		t.Error("expected error due to context cancellation, got nil")
	}
}
