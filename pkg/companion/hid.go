package companion

// HIDCommand identifies a virtual remote button.
type HIDCommand int

// Button codes sent under _hidC.
const (
	HIDUp               HIDCommand = 1
	HIDDown             HIDCommand = 2
	HIDLeft             HIDCommand = 3
	HIDRight            HIDCommand = 4
	HIDMenu             HIDCommand = 5
	HIDSelect           HIDCommand = 6
	HIDHome             HIDCommand = 7
	HIDVolumeUp         HIDCommand = 8
	HIDVolumeDown       HIDCommand = 9
	HIDSiri             HIDCommand = 10
	HIDScreensaver      HIDCommand = 11
	HIDSleep            HIDCommand = 12
	HIDWake             HIDCommand = 13
	HIDPlayPause        HIDCommand = 14
	HIDChannelIncrement HIDCommand = 15
	HIDChannelDecrement HIDCommand = 16
	HIDGuide            HIDCommand = 17
	HIDPageUp           HIDCommand = 18
	HIDPageDown         HIDCommand = 19
)

// String returns the button name.
func (c HIDCommand) String() string {
	switch c {
	case HIDUp:
		return "Up"
	case HIDDown:
		return "Down"
	case HIDLeft:
		return "Left"
	case HIDRight:
		return "Right"
	case HIDMenu:
		return "Menu"
	case HIDSelect:
		return "Select"
	case HIDHome:
		return "Home"
	case HIDVolumeUp:
		return "VolumeUp"
	case HIDVolumeDown:
		return "VolumeDown"
	case HIDSiri:
		return "Siri"
	case HIDScreensaver:
		return "Screensaver"
	case HIDSleep:
		return "Sleep"
	case HIDWake:
		return "Wake"
	case HIDPlayPause:
		return "PlayPause"
	case HIDChannelIncrement:
		return "ChannelIncrement"
	case HIDChannelDecrement:
		return "ChannelDecrement"
	case HIDGuide:
		return "Guide"
	case HIDPageUp:
		return "PageUp"
	case HIDPageDown:
		return "PageDown"
	default:
		return "Unknown"
	}
}

// Button states sent under _hBtS.
const (
	buttonPressed  = 1
	buttonReleased = 2
)

// MediaCommand identifies a media control operation sent under _mcc.
type MediaCommand int

// Media control codes.
const (
	MediaPlay               MediaCommand = 1
	MediaPause              MediaCommand = 2
	MediaNextTrack          MediaCommand = 3
	MediaPreviousTrack      MediaCommand = 4
	MediaGetVolume          MediaCommand = 5
	MediaSetVolume          MediaCommand = 6
	MediaSkipBy             MediaCommand = 7
	MediaFastForwardBegin   MediaCommand = 8
	MediaFastForwardEnd     MediaCommand = 9
	MediaRewindBegin        MediaCommand = 10
	MediaRewindEnd          MediaCommand = 11
	MediaGetCaptionSettings MediaCommand = 12
	MediaSetCaptionSettings MediaCommand = 13
)

// String returns the media command name.
func (c MediaCommand) String() string {
	switch c {
	case MediaPlay:
		return "Play"
	case MediaPause:
		return "Pause"
	case MediaNextTrack:
		return "NextTrack"
	case MediaPreviousTrack:
		return "PreviousTrack"
	case MediaGetVolume:
		return "GetVolume"
	case MediaSetVolume:
		return "SetVolume"
	case MediaSkipBy:
		return "SkipBy"
	case MediaFastForwardBegin:
		return "FastForwardBegin"
	case MediaFastForwardEnd:
		return "FastForwardEnd"
	case MediaRewindBegin:
		return "RewindBegin"
	case MediaRewindEnd:
		return "RewindEnd"
	case MediaGetCaptionSettings:
		return "GetCaptionSettings"
	case MediaSetCaptionSettings:
		return "SetCaptionSettings"
	default:
		return "Unknown"
	}
}
