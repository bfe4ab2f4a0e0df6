package automation

// Selectors locates the meeting client's controls. Defaults target the
// Microsoft Teams web client.
type Selectors struct {
	ContinueInBrowser string
	NameInput         string
	JoinButton        string
	LobbyIndicator    string
	HangUp            string
	MoreActions       string
	CaptionsToggle    string
	CaptionSpeaker    string
	CaptionText       string
}

func DefaultSelectors() Selectors {
	return Selectors{
		ContinueInBrowser: `[data-tid="joinOnWeb"]`,
		NameInput:         `input[data-tid="prejoin-display-name-input"]`,
		JoinButton:        `button[data-tid="prejoin-join-button"]`,
		LobbyIndicator:    `[data-tid="prejoin-lobby-screen"]`,
		HangUp:            `#hangup-button`,
		MoreActions:       `#callingButtons-showMoreBtn`,
		CaptionsToggle:    `#closed-captions-button`,
		CaptionSpeaker:    `[data-tid="closed-caption-v2-window-wrapper"] [data-tid="author"]`,
		CaptionText:       `[data-tid="closed-caption-v2-window-wrapper"] [data-tid="closed-caption-text"]`,
	}
}
