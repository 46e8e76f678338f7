package desktop

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"testing"

	"github.com/deskpilot/deskpilot/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectedLocal builds a local backend in the connected state with a fake
// command runner, bypassing the platform check in Connect.
func connectedLocal(run func(ctx context.Context, name string, args ...string) ([]byte, error)) *Local {
	return &Local{
		connected: true,
		cat:       catalog.New(localTools()),
		run:       run,
	}
}

func TestLocal_CallTool_NotConnected(t *testing.T) {
	l := NewLocal()

	_, err := l.CallTool(context.Background(), "screenshot", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, l.Connected())
	assert.Nil(t, l.Catalog())
}

func TestLocal_CatalogContents(t *testing.T) {
	l := connectedLocal(nil)

	names := l.Catalog().Names()
	assert.Equal(t, []string{"screenshot", "mouse_move", "mouse_click", "send_keys", "open_application"}, names)
}

func TestLocal_Screenshot(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	l := connectedLocal(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		require.Equal(t, "screencapture", name)
		require.Equal(t, "-x", args[0])
		return nil, os.WriteFile(args[1], png, 0600)
	})

	res, err := l.CallTool(context.Background(), "screenshot", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), res.ImageData)
}

func TestLocal_MouseActions(t *testing.T) {
	var gotArgs []string
	l := connectedLocal(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return nil, nil
	})

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
		want []string
	}{
		{"move", "mouse_move", map[string]interface{}{"x": float64(10), "y": float64(20)}, []string{"cliclick", "m:10,20"}},
		{"left click", "mouse_click", map[string]interface{}{"x": float64(5), "y": float64(6)}, []string{"cliclick", "c:5,6"}},
		{"right click", "mouse_click", map[string]interface{}{"x": float64(5), "y": float64(6), "button": "right"}, []string{"cliclick", "rc:5,6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := l.CallTool(context.Background(), tt.tool, tt.args)
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, tt.want, gotArgs)
		})
	}
}

func TestLocal_SendKeys(t *testing.T) {
	var script string
	l := connectedLocal(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		script = args[1]
		return nil, nil
	})

	res, err := l.CallTool(context.Background(), "send_keys", map[string]interface{}{"text": "hello"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, script, `keystroke "hello"`)

	res, err = l.CallTool(context.Background(), "send_keys", map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestLocal_OpenApplication(t *testing.T) {
	l := connectedLocal(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if args[1] == "Nope" {
			return nil, fmt.Errorf("exit status 1")
		}
		return nil, nil
	})

	res, err := l.CallTool(context.Background(), "open_application", map[string]interface{}{"name": "Safari"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Content, "Safari")

	res, err = l.CallTool(context.Background(), "open_application", map[string]interface{}{"name": "Nope"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = l.CallTool(context.Background(), "open_application", map[string]interface{}{"name": "  "})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestLocal_UnknownTool(t *testing.T) {
	l := connectedLocal(nil)

	res, err := l.CallTool(context.Background(), "reboot", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "unknown tool")
}

func TestLocal_Disconnect(t *testing.T) {
	l := connectedLocal(nil)

	require.NoError(t, l.Disconnect())
	assert.False(t, l.Connected())
	assert.Nil(t, l.Catalog())
}
