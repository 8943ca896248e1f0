package rod

import (
	"github.com/ysmood/gson"

	"go-meeting-transcriber/internal/core/domain"
)

// statusJS reads the interceptor counters and the participant badge in one round trip.
// participants is -1 when no counter is visible.
const statusJS = `() => {
	const status = window.__rtcGetStatus ? window.__rtcGetStatus() : {};
	const digits = (el) => {
		const text = el && el.textContent ? el.textContent.trim() : '';
		return /^\d+$/.test(text) ? parseInt(text, 10) : -1;
	};
	let participants = digits(document.querySelector('button[title="Участники"] .badge_iL7ZW'));
	if (participants < 0) {
		const items = document.querySelectorAll('.item_NZ2DW');
		if (items.length > 0) participants = items.length;
	}
	if (participants < 0) participants = digits(document.querySelector('[class*="badge_"]'));
	status.participants = participants;
	return status;
}`

const startRecordingJS = `() => {
	if (window.__rtcCapturePageAudio) window.__rtcCapturePageAudio();
	return window.__rtcStartRecording ? window.__rtcStartRecording() : false;
}`

const stopRecordingJS = `async () => {
	if (!window.__rtcStopRecording) return null;
	return await window.__rtcStopRecording();
}`

func decodeStatus(v gson.JSON) domain.CallStatus {
	status := domain.CallStatus{
		ConnectionCount:  intField(v, "peerConnections", 0),
		AudioTrackCount:  intField(v, "tracksConnected", 0),
		ParticipantCount: intField(v, "participants", domain.UnknownParticipants),
		ChunksRecorded:   intField(v, "chunksRecorded", 0),
	}
	if state, ok := v.Gets("audioContextState"); ok && !state.Nil() {
		status.AudioContextState = state.Str()
	}
	return status
}

func intField(v gson.JSON, key string, fallback int) int {
	field, ok := v.Gets(key)
	if !ok || field.Nil() {
		return fallback
	}
	return field.Int()
}

func recordingPayload(v gson.JSON) string {
	if v.Nil() {
		return ""
	}
	data, ok := v.Gets("data")
	if !ok || data.Nil() {
		return ""
	}
	return data.Str()
}
