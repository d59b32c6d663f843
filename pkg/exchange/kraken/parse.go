package kraken

import (
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/lycheetrade/krakenx/pkg/core"
)

// WebSocketEvent is an object-shaped control message of the private feed:
// system status, ping/pong, subscription acknowledgments.
type WebSocketEvent struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	ChannelName  string `json:"channelName"`
	ReqID        int64  `json:"reqid"`
	Subscription *struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

// ParseMessage decodes one raw frame from the private feed. Control messages
// come as JSON objects with an "event" key; channel data comes as a JSON
// array whose second-to-last element names the channel. Exactly one of the
// two returns is non-nil on success.
func ParseMessage(in []byte) (*WebSocketEvent, []core.Notice, error) {
	if len(in) == 0 {
		return nil, nil, errors.New("empty websocket frame")
	}

	if in[0] == '{' {
		var event WebSocketEvent
		if err := json.Unmarshal(in, &event); err != nil {
			return nil, nil, errors.Wrap(err, "malformed event frame")
		}
		return &event, nil, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(in, &elems); err != nil {
		return nil, nil, errors.Wrap(err, "malformed channel frame")
	}
	if len(elems) < 2 {
		return nil, nil, errors.Errorf("channel frame with %d elements", len(elems))
	}

	var channel string
	if err := json.Unmarshal(elems[len(elems)-2], &channel); err != nil {
		return nil, nil, errors.Wrap(err, "channel frame without channel name")
	}

	switch channel {
	case "openOrders":
		notices, err := parseOpenOrdersPayload(elems[0])
		return nil, notices, err
	}

	return nil, nil, errors.Errorf("unhandled channel %q", channel)
}

// parseOpenOrdersPayload flattens the batch payload, a list of single-entry
// maps keyed by broker order id, into notices. Entries are independent: a
// malformed entry is collected as an error and the rest of the batch is still
// parsed, so one bad order update cannot suppress another order's events.
func parseOpenOrdersPayload(in json.RawMessage) ([]core.Notice, error) {
	var batch []map[string]wsOrderUpdate
	if err := json.Unmarshal(in, &batch); err != nil {
		return nil, errors.Wrap(err, "malformed openOrders payload")
	}

	var notices []core.Notice
	var err error
	for _, entry := range batch {
		for brokerID, update := range entry {
			notice, noticeErr := toNotice(brokerID, update)
			if noticeErr != nil {
				err = multierr.Append(err, noticeErr)
				continue
			}
			notices = append(notices, notice)
		}
	}
	return notices, err
}
