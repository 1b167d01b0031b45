// Package sensor buffers readings from the robot's sensors and lets consumers wait for a
// reading to satisfy a condition.
package sensor

import (
	"context"
	"fmt"
)

// A Channel names one sensor reading.
type Channel int

// The channels read by the robot.
const (
	// FrontRange is the ultrasonic distance in cm.
	FrontRange Channel = iota
	// FrontColor is the id of the colour seen by the front colour sensor.
	FrontColor
	// LeftLight is the floor reflectance under the left light sensor, from 0 to 1.
	LeftLight
	// RightLight is the floor reflectance under the right light sensor, from 0 to 1.
	RightLight

	numChannels
)

var channelNames = [numChannels]string{
	FrontRange: "front_range",
	FrontColor: "front_color",
	LeftLight:  "left_light",
	RightLight: "right_light",
}

func (c Channel) String() string {
	if !c.valid() {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

func (c Channel) valid() bool {
	return c >= 0 && c < numChannels
}

// Channels returns every channel in order.
func Channels() []Channel {
	out := make([]Channel, 0, numChannels)
	for c := Channel(0); c < numChannels; c++ {
		out = append(out, c)
	}
	return out
}

// A category groups channels written under the same lock.
type category int

const (
	rangeCategory category = iota
	reflectanceCategory
	colorCategory

	numCategories
)

func (c Channel) category() category {
	switch c {
	case FrontRange:
		return rangeCategory
	case LeftLight, RightLight:
		return reflectanceCategory
	default:
		return colorCategory
	}
}

// A Source produces one reading of a channel on demand.
type Source interface {
	Sample(ctx context.Context, ch Channel) (float64, error)
}

// Stats summarizes a full window of readings.
type Stats struct {
	Mean     float64
	Variance float64
	StdDev   float64
}
