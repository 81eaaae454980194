package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessingStatus_InFlight(t *testing.T) {
	tests := []struct {
		status   ProcessingStatus
		inFlight bool
		terminal bool
	}{
		{StatusPending, true, false},
		{StatusStarted, true, false},
		{StatusRetry, true, false},
		{StatusSuccess, false, true},
		{StatusFailure, false, true},
		{StatusRevoked, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.inFlight, tt.status.InFlight())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
			assert.True(t, tt.status.Valid())
		})
	}
	assert.False(t, ProcessingStatus("BOGUS").Valid())
}

func TestDealReady(t *testing.T) {
	tests := []struct {
		name  string
		deal  ProcessingStatus
		files []ProcessingStatus
		want  bool
	}{
		{"deal pending", StatusPending, nil, false},
		{"deal started", StatusStarted, nil, false},
		{"deal retry", StatusRetry, nil, false},
		{"success no files", StatusSuccess, nil, true},
		{"failure counts as ready", StatusFailure, nil, true},
		{"revoked counts as ready", StatusRevoked, nil, true},
		{"one file pending", StatusSuccess, []ProcessingStatus{StatusSuccess, StatusPending}, false},
		{"one file started", StatusSuccess, []ProcessingStatus{StatusStarted}, false},
		{"one file retry", StatusSuccess, []ProcessingStatus{StatusSuccess, StatusRetry}, false},
		{"all terminal", StatusSuccess, []ProcessingStatus{StatusSuccess, StatusFailure, StatusRevoked}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal := &Deal{ProcessingStatus: tt.deal}
			files := make([]File, len(tt.files))
			for i, s := range tt.files {
				files[i] = File{ProcessingStatus: s}
			}
			assert.Equal(t, tt.want, DealReady(deal, files))
		})
	}
}

func TestDealReady_NilDeal(t *testing.T) {
	assert.False(t, DealReady(nil, nil))
}
