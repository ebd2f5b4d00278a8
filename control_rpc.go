package audiopolicy

import (
	"fmt"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
)

// maxWindowID is the largest window id a JSON number carries exactly.
const maxWindowID = 1 << 53

// Control RPC handlers
// System-level controls (volume keys, capture routing, speaker forcing)
// arrive as JSON method calls with map parameters. Every handler runs on
// the coordinating goroutine and mutates the registry directly.

// validateFloat64Param extracts and validates a float64 parameter from the params map
func validateFloat64Param(params map[string]interface{}, paramName, methodName string, min, max float64) (float64, error) {
	value, ok := params[paramName].(float64)
	if !ok {
		return 0, fmt.Errorf("%s: %s parameter must be a number, got %T", methodName, paramName, params[paramName])
	}
	if value < min || value > max {
		return 0, fmt.Errorf("%s: %s value %v out of range [%v to %v]", methodName, paramName, value, min, max)
	}
	return value, nil
}

// validateWindowParam extracts a window id
func validateWindowParam(params map[string]interface{}, methodName string) (audiochannel.WindowID, error) {
	value, err := validateFloat64Param(params, "window", methodName, 0, maxWindowID)
	if err != nil {
		return 0, err
	}
	if value != float64(uint64(value)) {
		return 0, fmt.Errorf("%s: window value %v must be an integer", methodName, value)
	}
	return audiochannel.WindowID(value), nil
}

// validateKindParam extracts a channel kind by name
func validateKindParam(params map[string]interface{}, methodName string) (audiochannel.Kind, error) {
	name, ok := params["kind"].(string)
	if !ok {
		return 0, fmt.Errorf("%s: kind parameter must be a string, got %T", methodName, params["kind"])
	}
	kind, err := audiochannel.ParseKind(name)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", methodName, err)
	}
	return kind, nil
}

// validateBoolParam extracts a boolean parameter
func validateBoolParam(params map[string]interface{}, paramName, methodName string) (bool, error) {
	value, ok := params[paramName].(bool)
	if !ok {
		return false, fmt.Errorf("%s: %s parameter must be a boolean, got %T", methodName, paramName, params[paramName])
	}
	return value, nil
}

func handleSetChannelVolume(r *audiochannel.Registry, params map[string]interface{}) (interface{}, error) {
	window, err := validateWindowParam(params, "setChannelVolume")
	if err != nil {
		return nil, err
	}
	kind, err := validateKindParam(params, "setChannelVolume")
	if err != nil {
		return nil, err
	}
	volume, err := validateFloat64Param(params, "volume", "setChannelVolume", 0, 1)
	if err != nil {
		return nil, err
	}
	r.SetChannelVolume(window, kind, float32(volume))
	return r.Window(window).Entry(kind), nil
}

func handleSetChannelMuted(r *audiochannel.Registry, params map[string]interface{}) (interface{}, error) {
	window, err := validateWindowParam(params, "setChannelMuted")
	if err != nil {
		return nil, err
	}
	kind, err := validateKindParam(params, "setChannelMuted")
	if err != nil {
		return nil, err
	}
	muted, err := validateBoolParam(params, "muted", "setChannelMuted")
	if err != nil {
		return nil, err
	}
	r.SetChannelMuted(window, kind, muted)
	return r.Window(window).Entry(kind), nil
}

func handleSetWindowCaptured(r *audiochannel.Registry, params map[string]interface{}) (interface{}, error) {
	window, err := validateWindowParam(params, "setWindowCaptured")
	if err != nil {
		return nil, err
	}
	captured, err := validateBoolParam(params, "captured", "setWindowCaptured")
	if err != nil {
		return nil, err
	}
	r.SetWindowCaptured(window, captured)
	return nil, nil
}

func handleSetForceSpeaker(r *audiochannel.Registry, params map[string]interface{}) (interface{}, error) {
	window, err := validateWindowParam(params, "setForceSpeaker")
	if err != nil {
		return nil, err
	}
	force, err := validateBoolParam(params, "force", "setForceSpeaker")
	if err != nil {
		return nil, err
	}
	r.SetForceSpeaker(window, force)
	return r.ForceSpeaker(), nil
}

func handleClearForceSpeaker(r *audiochannel.Registry, params map[string]interface{}) (interface{}, error) {
	window, err := validateWindowParam(params, "clearForceSpeaker")
	if err != nil {
		return nil, err
	}
	r.ClearForceSpeaker(window)
	return r.ForceSpeaker(), nil
}

func handleRemoveWindow(r *audiochannel.Registry, params map[string]interface{}) (interface{}, error) {
	window, err := validateWindowParam(params, "removeWindow")
	if err != nil {
		return nil, err
	}
	r.RemoveWindow(window)
	return nil, nil
}

// handleControlRPC routes a control method to its handler.
func handleControlRPC(r *audiochannel.Registry, method string, params map[string]interface{}) (interface{}, error) {
	switch method {
	case "setChannelVolume":
		return handleSetChannelVolume(r, params)
	case "setChannelMuted":
		return handleSetChannelMuted(r, params)
	case "setWindowCaptured":
		return handleSetWindowCaptured(r, params)
	case "setForceSpeaker":
		return handleSetForceSpeaker(r, params)
	case "clearForceSpeaker":
		return handleClearForceSpeaker(r, params)
	case "removeWindow":
		return handleRemoveWindow(r, params)
	case "getStatus":
		return r.Status(), nil
	default:
		return nil, fmt.Errorf("handleControlRPC: unsupported method '%s'", method)
	}
}

// isControlMethod reports whether method has a handler in handleControlRPC.
// It must be kept in sync with handleControlRPC.
func isControlMethod(method string) bool {
	switch method {
	case "setChannelVolume", "setChannelMuted", "setWindowCaptured",
		"setForceSpeaker", "clearForceSpeaker", "removeWindow", "getStatus":
		return true
	default:
		return false
	}
}
