package catalog

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
	"github.com/sdrvault/sdrvault/internal/storage/mocks"
)

func TestListFilesUsesDateAndFrequencyPrefix(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gw := mocks.NewMockGateway(ctrl)
	svc := New(gw, "sdr", nil)
	ctx := context.Background()

	keys := []string{"/2020-02-10/90MHz/2020_02_10__12_00_00.ogg"}
	gw.EXPECT().ListKeys(ctx, "sdr", "/2020-02-10").Return(keys, nil)
	gw.EXPECT().ListKeys(ctx, "sdr", "/2020-02-10/90MHz").Return(keys, nil)
	gw.EXPECT().ListKeys(ctx, "sdr", "").Return(keys, nil)

	got, err := svc.ListFiles(ctx, "2020-02-10", "")
	require.NoError(t, err)
	assert.Equal(t, keys, got)

	got, err = svc.ListFiles(ctx, "2020-02-10", "90MHz")
	require.NoError(t, err)
	assert.Equal(t, keys, got)

	got, err = svc.ListFiles(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, keys, got)
}

func TestListFilesPropagatesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().ListKeys(gomock.Any(), "sdr", "/2020-02-10").
		Return(nil, sverr.ErrStoreUnavailable.WithMessage("connection refused"))

	_, err := New(gw, "sdr", nil).ListFiles(context.Background(), "2020-02-10", "")
	assert.ErrorIs(t, err, sverr.ErrStoreUnavailable)
}

func TestListFrequenciesDeduplicates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().ListKeys(gomock.Any(), "sdr", "/2020-02-10").Return([]string{
		"/2020-02-10/90MHz/2020_02_10__12_01_00.ogg",
		"/2020-02-10/120_5MHz/2020_02_10__12_00_00.ogg",
		"/2020-02-10/90MHz/2020_02_10__12_00_00.ogg",
		"/2020-02-10/120_5MHz/2020_02_10__12_01_00.ogg",
	}, nil)

	got, err := New(gw, "sdr", nil).ListFrequencies(context.Background(), "2020-02-10")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"120_5MHz", "90MHz"}, got)
}

func TestListFrequenciesEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().ListKeys(gomock.Any(), "sdr", "/1999-01-01").Return([]string{}, nil)

	got, err := New(gw, "sdr", nil).ListFrequencies(context.Background(), "1999-01-01")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFrequenciesIgnoresShortKeys(t *testing.T) {
	got := Frequencies([]string{"/2020-02-10", "2020-02-10/433MHz/x.ogg", "/2020-02-10/433MHz/y.ogg"})
	assert.Equal(t, []string{"433MHz"}, got)
}
