package registry

import "github.com/herdworks/herd/pkg/models"

// cloneInfo deep-copies a registration record so callers cannot mutate
// registry state through a returned pointer.
func cloneInfo(info *models.DeviceInfo) *models.DeviceInfo {
	if info == nil {
		return nil
	}

	out := *info

	if info.Capabilities != nil {
		out.Capabilities = make([]models.DeviceCapability, len(info.Capabilities))

		for i, capability := range info.Capabilities {
			copied := capability
			copied.Config = cloneMap(capability.Config)
			copied.Metadata = cloneMap(capability.Metadata)
			out.Capabilities[i] = copied
		}
	}

	out.Metadata = cloneMap(info.Metadata)

	return &out
}

func cloneStatus(status *models.DeviceStatus) *models.DeviceStatus {
	if status == nil {
		return nil
	}

	out := *status

	if status.BatteryLevel != nil {
		battery := *status.BatteryLevel
		out.BatteryLevel = &battery
	}

	if status.SignalStrength != nil {
		signal := *status.SignalStrength
		out.SignalStrength = &signal
	}

	out.Extra = cloneMap(status.Extra)

	return &out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
