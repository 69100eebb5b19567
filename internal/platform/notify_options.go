package platform

import "time"

// AppName is reported to the notification service when Options.AppName is
// empty.
const AppName = "Coverpaper"

// Options configures how a notification is displayed on the host platform.
type Options struct {
	// AppName overrides the application name shown with the notification.
	AppName string
	// IconPath, when non-empty, points to an image file the notification center
	// should display with the notification if supported by the platform.
	IconPath string
	// Timeout is how long the notification stays visible. Zero selects the
	// platform default.
	Timeout time.Duration
}

func (o Options) appName() string {
	if o.AppName != "" {
		return o.AppName
	}
	return AppName
}
