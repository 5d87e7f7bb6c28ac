// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package fallback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shaxzodbek16/TinglaBot/internal/extractor"
	"github.com/Shaxzodbek16/TinglaBot/internal/workpool"
)

type scriptedExtractor struct {
	calls   int
	results []func(dir string) (*extractor.Result, error)
}

func (s *scriptedExtractor) Extract(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	if s.calls >= len(s.results) {
		return nil, errors.New("unscripted call")
	}
	step := s.results[s.calls]
	s.calls++
	return step(req.OutputDir)
}

func writeArtifact(t *testing.T, dir string, size int) func(string) (*extractor.Result, error) {
	t.Helper()
	return func(outDir string) (*extractor.Result, error) {
		path := filepath.Join(outDir, fmt.Sprintf("artifact-%d", size))
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			return nil, err
		}
		return &extractor.Result{Path: path, SizeBytes: int64(size)}, nil
	}
}

func failAttempt(err error) func(string) (*extractor.Result, error) {
	return func(string) (*extractor.Result, error) { return nil, err }
}

func testChain(n int) []Attempt {
	profiles := []extractor.FormatProfile{{Name: "m4a"}, {Name: "bestaudio"}, {Name: "best"}}
	var creds []extractor.Credential
	for i := 0; len(creds)*len(profiles) < n; i++ {
		creds = append(creds, extractor.Credential{Name: fmt.Sprintf("c%d", i)})
	}
	return BuildChain(creds, profiles)[:n]
}

func TestBuildChainCredentialMajorOrder(t *testing.T) {
	creds := []extractor.Credential{{Name: "a"}, {Name: "b"}}
	profiles := []extractor.FormatProfile{{Name: "m4a"}, {Name: "best"}}

	chain := BuildChain(creds, profiles)
	require.Len(t, chain, 4)

	assert.Equal(t, "a", chain[0].Credential.Name)
	assert.Equal(t, "m4a", chain[0].Profile.Name)
	assert.Equal(t, "a", chain[1].Credential.Name)
	assert.Equal(t, "best", chain[1].Profile.Name)
	assert.Equal(t, "b", chain[2].Credential.Name)
	assert.Equal(t, "m4a", chain[2].Profile.Name)
	assert.Equal(t, "b", chain[3].Credential.Name)
	assert.Equal(t, "best", chain[3].Profile.Name)
}

func TestBuildChainEmptyInputs(t *testing.T) {
	assert.Empty(t, BuildChain(nil, []extractor.FormatProfile{{Name: "m4a"}}))
	assert.Empty(t, BuildChain([]extractor.Credential{{Name: "a"}}, nil))
}

func TestResolveFirstSuccessWins(t *testing.T) {
	dir := t.TempDir()
	ext := &scriptedExtractor{results: []func(string) (*extractor.Result, error){
		writeArtifact(t, dir, 5000),
	}}
	engine := NewEngine(ext, workpool.New(2))

	res, err := engine.Resolve(context.Background(), extractor.Request{Query: "q", OutputDir: dir}, testChain(4), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), res.SizeBytes)
	assert.Equal(t, 1, ext.calls)
}

func TestResolveZeroByteArtifactAdvancesChain(t *testing.T) {
	dir := t.TempDir()
	ext := &scriptedExtractor{results: []func(string) (*extractor.Result, error){
		writeArtifact(t, dir, 0),
		writeArtifact(t, dir, 4096),
	}}
	engine := NewEngine(ext, workpool.New(2))

	res, err := engine.Resolve(context.Background(), extractor.Request{Query: "blinding lights", OutputDir: dir}, testChain(4), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), res.SizeBytes)
	assert.Equal(t, 2, ext.calls)

	// The undersized artifact was cleaned up
	_, statErr := os.Stat(filepath.Join(dir, "artifact-0"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestResolveUndersizedArtifactAdvancesChain(t *testing.T) {
	dir := t.TempDir()
	ext := &scriptedExtractor{results: []func(string) (*extractor.Result, error){
		writeArtifact(t, dir, MinArtifactBytes-1),
		writeArtifact(t, dir, MinArtifactBytes),
	}}
	engine := NewEngine(ext, workpool.New(2))

	res, err := engine.Resolve(context.Background(), extractor.Request{Query: "q", OutputDir: dir}, testChain(2), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(MinArtifactBytes), res.SizeBytes)
}

func TestResolveExhaustedCarriesAttemptCount(t *testing.T) {
	dir := t.TempDir()
	failure := errors.New("throttled")
	ext := &scriptedExtractor{results: []func(string) (*extractor.Result, error){
		failAttempt(failure),
		failAttempt(failure),
		failAttempt(failure),
	}}
	engine := NewEngine(ext, workpool.New(2))

	_, err := engine.Resolve(context.Background(), extractor.Request{Query: "q", OutputDir: dir}, testChain(3), time.Second)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrExhausted)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, ext.calls)
}

func TestResolveEmptyChain(t *testing.T) {
	engine := NewEngine(&scriptedExtractor{}, workpool.New(1))

	_, err := engine.Resolve(context.Background(), extractor.Request{}, nil, time.Second)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestResolveDeadlineAdvancesChain(t *testing.T) {
	dir := t.TempDir()
	ext := &hangingFirstExtractor{healthy: writeArtifact(t, dir, 4096)}
	engine := NewEngine(ext, workpool.New(2))

	res, err := engine.Resolve(context.Background(), extractor.Request{Query: "q", OutputDir: dir}, testChain(4), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), res.SizeBytes)
	assert.Equal(t, 2, ext.calls, "a hung credential advances the chain like any other failure")
}

func TestResolveAllAttemptsTimeOut(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(slowExtractor{}, workpool.New(2))

	_, err := engine.Resolve(context.Background(), extractor.Request{Query: "q", OutputDir: dir}, testChain(3), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrExhausted)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestResolveStopsOnCallerCancellation(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(slowExtractor{}, workpool.New(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := engine.Resolve(ctx, extractor.Request{Query: "q", OutputDir: dir}, testChain(5), time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

// hangingFirstExtractor blocks its first call until the attempt deadline
// fires, then serves the healthy artifact.
type hangingFirstExtractor struct {
	calls   int
	healthy func(string) (*extractor.Result, error)
}

func (h *hangingFirstExtractor) Extract(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	h.calls++
	if h.calls == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return h.healthy(req.OutputDir)
}

type slowExtractor struct{}

func (slowExtractor) Extract(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
