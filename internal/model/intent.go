// Package model defines the core domain types shared across the pipeline.
package model

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	// IntentRegister records a new income or expense.
	IntentRegister Intent = "register"
	// IntentQuery asks about balances, totals or recent entries.
	IntentQuery Intent = "query"
	// IntentEdit corrects an existing entry.
	IntentEdit Intent = "edit"
	// IntentDelete removes an existing entry.
	IntentDelete Intent = "delete"
	// IntentGreeting is a salutation with no actionable content.
	IntentGreeting Intent = "greeting"
	// IntentHelp asks how the assistant works.
	IntentHelp Intent = "help"
	// IntentConfirm resolves a pending action affirmatively.
	IntentConfirm Intent = "confirm"
	// IntentCancel resolves a pending action negatively.
	IntentCancel Intent = "cancel"
	// IntentUnknown could not be classified.
	IntentUnknown Intent = "unknown"
)

// Channel identifies how a message reached the pipeline.
type Channel string

const (
	// ChannelText is a plain text message.
	ChannelText Channel = "text"
	// ChannelAudio is text transcribed from a voice note.
	ChannelAudio Channel = "audio"
	// ChannelImage is text derived from an image (receipt, invoice).
	ChannelImage Channel = "image"
)
