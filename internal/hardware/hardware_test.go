package hardware

import (
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

type flakyServo struct {
	calls int
	err   error
}

func (f *flakyServo) SetPosition(float64) error {
	f.calls++
	return f.err
}
func (f *flakyServo) Center() error { return f.SetPosition(0) }
func (f *flakyServo) Close() error  { return nil }

func TestGuardServo_FirstErrorDisables(t *testing.T) {
	inner := &flakyServo{err: errors.New("pwm busy")}
	g := GuardServo("bell", inner)

	require.NoError(t, g.SetPosition(0.5))
	require.True(t, g.Failed())
	require.NoError(t, g.SetPosition(-0.5))
	require.NoError(t, g.Center())
	require.Equal(t, 1, inner.calls)
}

func TestGuardServo_ClampsPosition(t *testing.T) {
	inner := &NullServo{}
	g := GuardServo("bell", inner)
	require.NoError(t, g.SetPosition(3))
	require.NoError(t, g.SetPosition(-3))
	require.NoError(t, g.Center())
	require.Equal(t, []float64{1, -1, 0}, inner.Positions())
}

func TestGuard_NilDevices(t *testing.T) {
	s := GuardStrip("leds", nil)
	require.Zero(t, s.Len())
	require.NoError(t, s.SetPixel(0, Black))
	require.NoError(t, s.Show())
	require.NoError(t, s.Close())

	sv := GuardServo("bell", nil)
	require.NoError(t, sv.Center())
	require.NoError(t, sv.Close())

	sw := GuardSwitch("mister", nil)
	require.NoError(t, sw.Set(true))
	require.NoError(t, sw.Close())
}

func TestNullStrip(t *testing.T) {
	s := NewNullStrip(3)
	red := color.RGBA{R: 255, A: 255}

	require.NoError(t, s.SetPixel(1, red))
	require.Error(t, s.SetPixel(3, red))
	require.Equal(t, make([]color.RGBA, 3), s.Shown())

	require.NoError(t, s.Show())
	require.Equal(t, red, s.Shown()[1])

	require.NoError(t, s.Fill(Black))
	require.NoError(t, s.Show())
	require.Equal(t, []color.RGBA{Black, Black, Black}, s.Shown())
	require.Equal(t, 2, s.Shows())
}

func TestNullSwitch(t *testing.T) {
	s := &NullSwitch{}
	require.False(t, s.On())
	require.NoError(t, s.Set(true))
	require.True(t, s.On())
	require.NoError(t, s.Set(false))
	require.Equal(t, []bool{true, false}, s.History())
}
