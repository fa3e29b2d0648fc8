package grpcfeed

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/eduardojeem/repairboard/pkg/models"
)

const (
	msgConnected   = "connected"
	msgOrderChange = "order_change"
)

func connectedToProto() *structpb.Struct {
	st, _ := structpb.NewStruct(map[string]any{"type": msgConnected})
	return st
}

func eventToProto(ev models.OrderEvent) (*structpb.Struct, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{"type": msgOrderChange, "event": payload})
}

func messageType(st *structpb.Struct) string {
	if st == nil {
		return ""
	}
	return st.GetFields()["type"].GetStringValue()
}

func protoToEvent(st *structpb.Struct) (models.OrderEvent, error) {
	var ev models.OrderEvent
	payload := st.GetFields()["event"].GetStructValue()
	if payload == nil {
		return ev, fmt.Errorf("order_change message without event")
	}
	b, err := payload.MarshalJSON()
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, fmt.Errorf("decode order change: %w", err)
	}
	return ev, nil
}
