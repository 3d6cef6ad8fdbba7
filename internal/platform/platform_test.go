package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/creatordisco/discovery/internal/apperr"
	"github.com/creatordisco/discovery/internal/governor"
	"github.com/creatordisco/discovery/internal/platformclient"
)

type fakeSearcher struct {
	searchResponses map[string][]string
	searchErrs      map[string]error // keyed by credential, applies to all queries
	channels        map[string]platformclient.ChannelResult
	searchCalls     int
	channelsCalls   int
}

func (f *fakeSearcher) SearchChannels(ctx context.Context, credential, query string, maxResults int) ([]string, error) {
	f.searchCalls++
	if err, ok := f.searchErrs[credential]; ok {
		return nil, err
	}
	return f.searchResponses[query], nil
}

func (f *fakeSearcher) GetChannels(ctx context.Context, credential string, channelIDs []string) ([]platformclient.ChannelResult, error) {
	f.channelsCalls++
	out := make([]platformclient.ChannelResult, 0, len(channelIDs))
	for _, id := range channelIDs {
		if ch, ok := f.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func TestSearchChannels_QuotaRejectReturnsEmpty(t *testing.T) {
	quota := governor.NewQuotaGovernor(governor.QuotaGovernorConfig{DailyQuota: 10, DowngradeThreshold: 0.8}, []string{"key-a"})
	a := New(&fakeSearcher{}, quota)

	results, _, err := a.SearchChannels(context.Background(), []string{"true crime"}, 50)
	if err != nil {
		t.Fatalf("SearchChannels: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want empty map on REJECT", results)
	}
}

func TestSearchChannels_DedupesAndFetchesChannels(t *testing.T) {
	fs := &fakeSearcher{
		searchResponses: map[string][]string{
			"true crime":          {"UC1", "UC2"},
			"true crime official": {"UC2", "UC3"},
		},
		channels: map[string]platformclient.ChannelResult{
			"UC1": {ChannelID: "UC1", DisplayName: "Channel One", Subscribers: 1000},
			"UC2": {ChannelID: "UC2", DisplayName: "Channel Two", Subscribers: 2000},
			"UC3": {ChannelID: "UC3", DisplayName: "Channel Three", Subscribers: 3000},
		},
	}
	quota := governor.NewQuotaGovernor(governor.DefaultQuotaGovernorConfig(), []string{"key-a"})
	a := New(fs, quota)

	results, _, err := a.SearchChannels(context.Background(), []string{"true crime", "true crime", "true crime official"}, 50)
	if err != nil {
		t.Fatalf("SearchChannels: %v", err)
	}
	if fs.searchCalls != 2 {
		t.Errorf("searchCalls = %d, want 2 (dedup should drop the repeated query)", fs.searchCalls)
	}
	if len(results["true crime"]) != 2 {
		t.Errorf("results[true crime] = %v, want 2 profiles", results["true crime"])
	}
	if results["true crime"][0].ChannelID != "UC1" || results["true crime"][0].Subscribers != 1000 {
		t.Errorf("results[true crime][0] = %+v, want UC1/1000", results["true crime"][0])
	}
}

func TestSearchChannels_ChannelCacheAvoidsRefetch(t *testing.T) {
	fs := &fakeSearcher{
		searchResponses: map[string][]string{"true crime": {"UC1"}},
		channels:        map[string]platformclient.ChannelResult{"UC1": {ChannelID: "UC1", DisplayName: "Channel One"}},
	}
	quota := governor.NewQuotaGovernor(governor.DefaultQuotaGovernorConfig(), []string{"key-a"})
	a := New(fs, quota)
	ctx := context.Background()

	if _, _, err := a.SearchChannels(ctx, []string{"true crime"}, 50); err != nil {
		t.Fatalf("first SearchChannels: %v", err)
	}
	if fs.channelsCalls != 1 {
		t.Fatalf("channelsCalls = %d after first call, want 1", fs.channelsCalls)
	}

	if _, _, err := a.SearchChannels(ctx, []string{"true crime"}, 50); err != nil {
		t.Fatalf("second SearchChannels: %v", err)
	}
	if fs.channelsCalls != 1 {
		t.Errorf("channelsCalls = %d after second call, want still 1 (channel cache hit)", fs.channelsCalls)
	}
}

func TestSearchChannels_RotatesCredentialOnQuotaShapedFailure(t *testing.T) {
	fs := &fakeSearcher{
		searchErrs: map[string]error{
			"key-a": apperr.ErrQuotaShaped,
		},
		searchResponses: map[string][]string{"true crime": {"UC1"}},
		channels:        map[string]platformclient.ChannelResult{"UC1": {ChannelID: "UC1"}},
	}
	quota := governor.NewQuotaGovernor(governor.DefaultQuotaGovernorConfig(), []string{"key-a", "key-b"})
	a := New(fs, quota)

	results, _, err := a.SearchChannels(context.Background(), []string{"true crime"}, 50)
	if err != nil {
		t.Fatalf("SearchChannels: %v", err)
	}
	if len(results["true crime"]) != 1 {
		t.Errorf("results = %v, want 1 profile after rotating past the failing credential", results)
	}
}

func TestSearchChannels_CredentialsExhausted(t *testing.T) {
	fs := &fakeSearcher{
		searchErrs: map[string]error{"key-a": apperr.ErrQuotaShaped, "key-b": apperr.ErrQuotaShaped},
	}
	quota := governor.NewQuotaGovernor(governor.DefaultQuotaGovernorConfig(), []string{"key-a", "key-b"})
	a := New(fs, quota)

	_, _, err := a.SearchChannels(context.Background(), []string{"true crime"}, 50)
	if !errors.Is(err, apperr.ErrCredentialsExhausted) {
		t.Fatalf("err = %v, want ErrCredentialsExhausted", err)
	}
}

func TestSearchChannels_NonQuotaErrorAbortsImmediately(t *testing.T) {
	fs := &fakeSearcher{searchErrs: map[string]error{"key-a": errors.New("transport failure")}}
	quota := governor.NewQuotaGovernor(governor.DefaultQuotaGovernorConfig(), []string{"key-a"})
	a := New(fs, quota)

	_, _, err := a.SearchChannels(context.Background(), []string{"true crime"}, 50)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if fs.searchCalls != 1 {
		t.Errorf("searchCalls = %d, want 1 (no credential rotation on a non-quota error)", fs.searchCalls)
	}
}
