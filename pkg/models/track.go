package models

import (
	"encoding/json"
	"time"
)

// TrackEventType discriminates the telemetry event union.
type TrackEventType string

const (
	// TrackEventTypeUser is a named user/trigger event.
	TrackEventTypeUser TrackEventType = "event"
	// TrackEventTypeExperiment is an experiment exposure.
	TrackEventTypeExperiment TrackEventType = "experiment"
	// TrackEventTypeCrash is a recovered crash report.
	TrackEventTypeCrash TrackEventType = "crash"
)

// TrackEvent is one telemetry record. Exactly one payload is non-nil for a
// given Type. Ordering within a batch is insertion order.
type TrackEvent struct {
	Type       TrackEventType
	User       *TrackUserEvent
	Experiment *TrackExperimentEvent
	Crash      *TrackCrashEvent
}

// TrackUserEvent records that a named event occurred.
type TrackUserEvent struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackExperimentEvent records an experiment exposure.
type TrackExperimentEvent struct {
	ExperimentID string    `json:"experimentId"`
	VariantID    string    `json:"variantId"`
	Timestamp    time.Time `json:"timestamp"`
}

// TrackCrashEvent carries a recovered exception chain.
type TrackCrashEvent struct {
	Exceptions []ExceptionRecord `json:"exceptions"`
}

// ExceptionRecord is one level of a crash's cause chain.
type ExceptionRecord struct {
	Type       string       `json:"type,omitempty"`
	Message    string       `json:"message,omitempty"`
	CallStacks []StackFrame `json:"callStacks,omitempty"`
}

// StackFrame is one frame of a recorded call stack.
type StackFrame struct {
	FileName   string `json:"fileName,omitempty"`
	ClassName  string `json:"className,omitempty"`
	MethodName string `json:"methodName,omitempty"`
	LineNumber *int   `json:"lineNumber,omitempty"`
}

// MarshalJSON encodes the event as its flat wire object with a typename
// discriminator.
func (e TrackEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TrackEventTypeExperiment:
		return json.Marshal(struct {
			Typename TrackEventType `json:"typename"`
			*TrackExperimentEvent
		}{e.Type, e.Experiment})
	case TrackEventTypeCrash:
		return json.Marshal(struct {
			Typename TrackEventType `json:"typename"`
			*TrackCrashEvent
		}{e.Type, e.Crash})
	default:
		return json.Marshal(struct {
			Typename TrackEventType `json:"typename"`
			*TrackUserEvent
		}{TrackEventTypeUser, e.User})
	}
}

// NewUserEvent builds a user event stamped with now.
func NewUserEvent(name string, now time.Time) TrackEvent {
	return TrackEvent{
		Type: TrackEventTypeUser,
		User: &TrackUserEvent{Name: name, Timestamp: now},
	}
}

// NewExperimentEvent builds an exposure event stamped with now.
func NewExperimentEvent(experimentID, variantID string, now time.Time) TrackEvent {
	return TrackEvent{
		Type: TrackEventTypeExperiment,
		Experiment: &TrackExperimentEvent{
			ExperimentID: experimentID,
			VariantID:    variantID,
			Timestamp:    now,
		},
	}
}

// NewCrashEvent wraps a recovered exception chain.
func NewCrashEvent(exceptions []ExceptionRecord) TrackEvent {
	return TrackEvent{
		Type:  TrackEventTypeCrash,
		Crash: &TrackCrashEvent{Exceptions: exceptions},
	}
}

// TrackMeta describes the app and device a batch originates from.
type TrackMeta struct {
	AppID      string `json:"appId,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	OSName     string `json:"osName,omitempty"`
	OSVersion  string `json:"osVersion,omitempty"`
	SDKVersion string `json:"sdkVersion,omitempty"`
	Platform   string `json:"platform,omitempty"`
}

// TrackRequest is one telemetry batch as posted to the track endpoint.
type TrackRequest struct {
	ProjectID string       `json:"projectId"`
	UserID    string       `json:"userId"`
	Timestamp time.Time    `json:"timestamp"`
	Events    []TrackEvent `json:"events"`
	Meta      TrackMeta    `json:"meta"`
}
