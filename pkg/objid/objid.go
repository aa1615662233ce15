// Package objid derives deterministic canonical identifiers from raw feeder
// fields. Every function here is pure: re-running ingestion on the same
// payload yields identical ids.
package objid

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namespace for chat-instance UUIDv5 derivation. Fixed forever; changing it
// would re-key every stored instance.
var instanceNS = uuid.MustParse("9fd34cfb-0bab-4edf-ac31-11de5ca18d0f")

// ChatInstanceID returns a stable id over the (protocol, network, address)
// discriminator tuple. Missing network/address are the empty string, not a
// wildcard: ("irc", "", "") and ("irc", "libera", "") are distinct instances.
func ChatInstanceID(protocol, network, address string) string {
	seed := protocol + "|" + network + "|" + address
	return uuid.NewSHA1(instanceNS, []byte(seed)).String()
}

// MessageID derives a message id from its full ingestion context. Optional
// components carry distinct tags so that a value present in one slot can
// never collide with the same value in another, and absence is encoded by
// the tag missing entirely.
func MessageID(instanceID, chatID, feederMsgID string, timestamp int64, channelID, threadID string) string {
	parts := make([]string, 0, 6)
	parts = append(parts, instanceID, "c:"+chatID)
	if channelID != "" {
		parts = append(parts, "sc:"+channelID)
	}
	if threadID != "" {
		parts = append(parts, "th:"+threadID)
	}
	parts = append(parts, "m:"+feederMsgID, strconv.FormatInt(timestamp, 10))
	return strings.Join(parts, "/")
}

// SubChannelID namespaces a feeder subchannel id under its chat.
func SubChannelID(chatID, feederSubchannelID string) string {
	return chatID + "/" + feederSubchannelID
}

// DateString renders a unix timestamp as a YYYYMMDD day key (UTC).
func DateString(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format("20060102")
}
