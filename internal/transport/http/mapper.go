package http

import (
	"encoding/json"
	"errors"

	"github.com/skygrid/roomdir-server/internal/core"
	"github.com/skygrid/roomdir-server/internal/proto"
)

func roomToProto(view core.RoomView) proto.Room {
	return proto.Room{
		ID:          view.ID,
		Type:        string(view.Type),
		Name:        view.Name,
		Description: view.Description,
		HasPassword: view.HasPassword,
		MaxClients:  view.MaxClients,
		ClientCount: view.ClientCount,
		CreatedAt:   view.CreatedAt.Unix(),
	}
}

func snapshotToOutbound(views []core.RoomView) proto.Outbound {
	rooms := make([]proto.Room, 0, len(views))
	for _, view := range views {
		rooms = append(rooms, roomToProto(view))
	}
	return proto.Outbound{
		Type: proto.OutboundTypeSnapshot,
		Data: proto.SnapshotData{Rooms: rooms},
	}
}

func deltaToOutbound(d core.Delta) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: string(d.Kind),
		Data: proto.DeltaData{
			Seq:  d.Seq,
			Kind: string(d.Kind),
			Room: roomToProto(d.Room),
		},
	}
}

func grantToProto(grant *core.Grant) proto.GrantedData {
	return proto.GrantedData{
		Room: roomToProto(grant.Room),
		Session: proto.SessionData{
			URL:      grant.Session.URL,
			Token:    grant.Session.Token,
			RoomName: grant.Session.RoomName,
			Identity: grant.Session.Identity,
		},
	}
}

func grantToOutbound(grant *core.Grant) proto.Outbound {
	return proto.Outbound{
		Type: proto.OutboundTypeGranted,
		Data: grantToProto(grant),
	}
}

// errorToOutbound maps a negotiation failure onto the wire: typed denials
// become "denied", everything else a generic "error".
func errorToOutbound(err error) proto.Outbound {
	var de *core.DomainError
	if errors.As(err, &de) {
		typ := proto.OutboundTypeError
		if core.IsDenial(de) {
			typ = proto.OutboundTypeDenied
		}
		return proto.Outbound{
			Type:  typ,
			Error: &proto.Error{Code: de.Code, Msg: de.Message},
		}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: "internal", Msg: "internal error"},
	}
}

// inboundToIntent maps a join inbound to a core intent. The second return is
// a protocol-level error to echo back without dropping the connection.
func inboundToIntent(inbound proto.Inbound) (*core.JoinIntent, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoinPublic:
		return &core.JoinIntent{Target: core.RoomTypePublic}, nil, nil
	case proto.InboundTypeJoinRoom:
		var join proto.JoinRoomData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		return &core.JoinIntent{RoomID: join.RoomID, Secret: join.Password}, nil, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}
