package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGoFileAdapter_Parse(t *testing.T) {
	adapter := NewLocalGoFileAdapter()

	src := []byte(`package main

import (
	"fmt"
	cfg "example.com/app/internal/config"
)

func main() { fmt.Println(cfg.Name) }
`)

	parsed, err := adapter.Parse(context.Background(), "cmd/app/main.go", src)
	require.NoError(t, err)

	assert.Equal(t, "main", parsed.Package)
	assert.True(t, parsed.MainGuard)
	require.Len(t, parsed.Imports, 2)
	assert.Equal(t, "fmt", parsed.Imports[0].Module)
	assert.Equal(t, "example.com/app/internal/config", parsed.Imports[1].Module)
	assert.Equal(t, 5, parsed.Imports[1].Line)
}

func TestLocalGoFileAdapter_Parse_LibraryHasNoMain(t *testing.T) {
	adapter := NewLocalGoFileAdapter()

	parsed, err := adapter.Parse(context.Background(), "lib.go", []byte("package lib\n\nfunc main() {}\n"))
	require.NoError(t, err)
	assert.False(t, parsed.MainGuard)

	parsed, err = adapter.Parse(context.Background(), "main.go", []byte("package main\n\ntype T struct{}\n\nfunc (T) main() {}\n"))
	require.NoError(t, err)
	assert.False(t, parsed.MainGuard)
}

func TestLocalGoFileAdapter_Parse_InvalidSource(t *testing.T) {
	adapter := NewLocalGoFileAdapter()

	_, err := adapter.Parse(context.Background(), "broken.go", []byte("package foo\n func"))
	require.Error(t, err)
}

func TestLocalGoFileAdapter_Parse_ContextCancellation(t *testing.T) {
	adapter := NewLocalGoFileAdapter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Parse(ctx, "example.go", []byte("package main\nfunc main() {}"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocalGoFileAdapter_ModulePath(t *testing.T) {
	adapter := NewLocalGoFileAdapter()

	tests := []struct {
		name  string
		goMod string
		want  string
	}{
		{name: "plain", goMod: "module example.com/app\n\ngo 1.22\n", want: "example.com/app"},
		{name: "quoted with comment", goMod: "// header\nmodule \"example.com/q\" // note\n", want: "example.com/q"},
		{name: "missing", goMod: "go 1.22\n", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adapter.ModulePath([]byte(tt.goMod)))
		})
	}
}
