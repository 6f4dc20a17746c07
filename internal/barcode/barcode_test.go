package barcode

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// qrCard renders a QR code onto a white card-sized canvas.
func qrCard(t *testing.T, text string) *image.NRGBA {
	t.Helper()
	bm, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	require.NoError(t, err)

	card := image.NewNRGBA(image.Rect(0, 0, 480, 300))
	draw.Draw(card, card.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(card, image.Rect(260, 50, 460, 250), bm, image.Point{}, draw.Src)
	return card
}

func TestDecode_QR(t *testing.T) {
	d := NewDecoder(Options{})
	res, err := d.Decode(context.Background(), qrCard(t, "ID:0042;EXP:2030-01"))
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, FormatQR, res[0].Format)
	assert.Equal(t, "ID:0042;EXP:2030-01", res[0].Value)
	assert.NotEmpty(t, res[0].Points)
}

func TestDecode_NothingFound(t *testing.T) {
	blank := image.NewNRGBA(image.Rect(0, 0, 100, 60))
	draw.Draw(blank, blank.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	res, err := NewDecoder(Options{Formats: []Format{FormatQR, FormatCode128}}).Decode(context.Background(), blank)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestDecode_RestrictedFormatsSkipQR(t *testing.T) {
	d := NewDecoder(Options{Formats: []Format{FormatCode39}})
	res, err := d.Decode(context.Background(), qrCard(t, "hello"))
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestDecode_Errors(t *testing.T) {
	_, err := NewDecoder(Options{}).Decode(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewDecoder(Options{}).Decode(ctx, qrCard(t, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats([]string{"QR_CODE", "Code_128", " dm ", ""})
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatQR, FormatCode128, FormatDataMatrix}, got)

	for _, name := range []string{"ean99", "pdf417"} {
		_, err = ParseFormats([]string{name})
		assert.Error(t, err, name)
	}

	assert.Equal(t, AllFormats, NewDecoder(Options{}).Formats())
}
