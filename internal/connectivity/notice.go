package connectivity

import "time"

// Defaults for the monitor and prober.
const (
	DefaultInterval     = 30 * time.Second
	DefaultProbeTimeout = 5 * time.Second
	DefaultToastTTL     = 3 * time.Second
)

// NoticeKind distinguishes the persistent offline banner from transient toasts.
type NoticeKind string

const (
	// NoticeBanner is shown while offline and never auto-dismisses.
	NoticeBanner NoticeKind = "banner"

	// NoticeBannerCleared withdraws the banner.
	NoticeBannerCleared NoticeKind = "banner-cleared"

	// NoticeToast is a non-blocking message dismissed after its TTL.
	NoticeToast NoticeKind = "toast"
)

// User-facing connectivity messages.
const (
	OfflineTitle       = "You're offline"
	OfflineMessage     = "Don't worry, your data is saved and will be submitted when you're back online."
	SubmitDisabledHint = "You're offline. Your data will be saved and submitted when you're back online."
	BackOnlineMessage  = "You're back online!"
	RestoredMessage    = "Connection restored!"
)

// Notice is a connectivity message for the user.
type Notice struct {
	Kind    NoticeKind    `json:"kind"`
	Title   string        `json:"title,omitempty"`
	Message string        `json:"message"`
	TTL     time.Duration `json:"ttl,omitempty"` // zero for persistent notices
}

// Persistent reports whether the notice stays until withdrawn.
func (n Notice) Persistent() bool {
	return n.Kind == NoticeBanner
}

// noticesFor returns the notices raised by a transition.
func noticesFor(tr Transition, toastTTL time.Duration) []Notice {
	if tr.To == Offline {
		return []Notice{{Kind: NoticeBanner, Title: OfflineTitle, Message: OfflineMessage}}
	}
	msg := BackOnlineMessage
	if tr.Cause == CauseProbe {
		msg = RestoredMessage
	}
	return []Notice{
		{Kind: NoticeBannerCleared},
		{Kind: NoticeToast, Message: msg, TTL: toastTTL},
	}
}
