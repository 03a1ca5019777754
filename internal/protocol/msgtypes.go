package protocol

import "fmt"

// MsgType is the leading u16 tag of every application message.
type MsgType uint16

// Client agent <-> client messages.
const (
	ClientHello                         MsgType = 1
	ClientHelloResp                     MsgType = 2
	ClientDisconnect                    MsgType = 3
	ClientEject                         MsgType = 4
	ClientHeartbeat                     MsgType = 5
	ClientObjectSetField                MsgType = 120
	ClientObjectLeaving                 MsgType = 132
	ClientObjectLocation                MsgType = 140
	ClientEnterObjectRequired           MsgType = 142
	ClientEnterObjectRequiredOther      MsgType = 143
	ClientObjectLeavingOwner            MsgType = 161
	ClientEnterObjectRequiredOwner      MsgType = 172
	ClientEnterObjectRequiredOtherOwner MsgType = 173
	ClientAddInterest                   MsgType = 200
	ClientAddInterestMultiple           MsgType = 201
	ClientRemoveInterest                MsgType = 203
	ClientDoneInterestResp              MsgType = 204
)

// Message director control messages.
const (
	ControlAddChannel       MsgType = 9000
	ControlRemoveChannel    MsgType = 9001
	ControlAddPostRemove    MsgType = 9010
	ControlClearPostRemoves MsgType = 9011
	ControlSetConName       MsgType = 9012
)

// ControlChannel is the message director's own address for control traffic.
const ControlChannel uint64 = 1

// Client agent control.
const (
	ClientAgentEject                 MsgType = 1004
	ClientAgentGetNetworkAddress     MsgType = 1006
	ClientAgentGetNetworkAddressResp MsgType = 1007
)

// State server.
const (
	StateServerCreateObjectWithRequired             MsgType = 2000
	StateServerCreateObjectWithRequiredOther        MsgType = 2001
	StateServerObjectDeleteRAM                      MsgType = 2007
	StateServerObjectRequestDelete                  MsgType = 2008
	StateServerDeleteAIObjects                      MsgType = 2009
	StateServerObjectGetAll                         MsgType = 2014
	StateServerObjectGetAllResp                     MsgType = 2015
	StateServerObjectSetField                       MsgType = 2020
	StateServerObjectSetLocation                    MsgType = 2040
	StateServerObjectChangingLocation               MsgType = 2041
	StateServerObjectEnterLocationWithRequired      MsgType = 2042
	StateServerObjectEnterLocationWithRequiredOther MsgType = 2043
	StateServerObjectGetLocation                    MsgType = 2044
	StateServerObjectGetLocationResp                MsgType = 2045
	StateServerObjectChangingAI                     MsgType = 2051
	StateServerObjectEnterAIWithRequired            MsgType = 2052
	StateServerObjectEnterAIWithRequiredOther       MsgType = 2053
)

// Database state server.
const (
	DBSSObjectGetActivated     MsgType = 2207
	DBSSObjectGetActivatedResp MsgType = 2208
)

// Database server.
const (
	DBServerCreateObject                MsgType = 3000
	DBServerCreateObjectResp            MsgType = 3001
	DBServerObjectGetField              MsgType = 3010
	DBServerObjectGetFieldResp          MsgType = 3011
	DBServerObjectGetFields             MsgType = 3012
	DBServerObjectGetFieldsResp         MsgType = 3013
	DBServerObjectGetAll                MsgType = 3014
	DBServerObjectGetAllResp            MsgType = 3015
	DBServerObjectSetFieldIfEqualsResp  MsgType = 3023
	DBServerObjectSetFieldsIfEqualsResp MsgType = 3025
)

var msgTypeNames = map[MsgType]string{
	ClientHello:                         "CLIENT_HELLO",
	ClientHelloResp:                     "CLIENT_HELLO_RESP",
	ClientDisconnect:                    "CLIENT_DISCONNECT",
	ClientEject:                         "CLIENT_EJECT",
	ClientHeartbeat:                     "CLIENT_HEARTBEAT",
	ClientObjectSetField:                "CLIENT_OBJECT_SET_FIELD",
	ClientObjectLeaving:                 "CLIENT_OBJECT_LEAVING",
	ClientObjectLocation:                "CLIENT_OBJECT_LOCATION",
	ClientEnterObjectRequired:           "CLIENT_ENTER_OBJECT_REQUIRED",
	ClientEnterObjectRequiredOther:      "CLIENT_ENTER_OBJECT_REQUIRED_OTHER",
	ClientObjectLeavingOwner:            "CLIENT_OBJECT_LEAVING_OWNER",
	ClientEnterObjectRequiredOwner:      "CLIENT_ENTER_OBJECT_REQUIRED_OWNER",
	ClientEnterObjectRequiredOtherOwner: "CLIENT_ENTER_OBJECT_REQUIRED_OTHER_OWNER",
	ClientAddInterest:                   "CLIENT_ADD_INTEREST",
	ClientAddInterestMultiple:           "CLIENT_ADD_INTEREST_MULTIPLE",
	ClientRemoveInterest:                "CLIENT_REMOVE_INTEREST",
	ClientDoneInterestResp:              "CLIENT_DONE_INTEREST_RESP",

	ControlAddChannel:       "CONTROL_ADD_CHANNEL",
	ControlRemoveChannel:    "CONTROL_REMOVE_CHANNEL",
	ControlAddPostRemove:    "CONTROL_ADD_POST_REMOVE",
	ControlClearPostRemoves: "CONTROL_CLEAR_POST_REMOVES",
	ControlSetConName:       "CONTROL_SET_CON_NAME",

	ClientAgentEject:                 "CLIENTAGENT_EJECT",
	ClientAgentGetNetworkAddress:     "CLIENTAGENT_GET_NETWORK_ADDRESS",
	ClientAgentGetNetworkAddressResp: "CLIENTAGENT_GET_NETWORK_ADDRESS_RESP",

	StateServerCreateObjectWithRequired:             "STATESERVER_CREATE_OBJECT_WITH_REQUIRED",
	StateServerCreateObjectWithRequiredOther:        "STATESERVER_CREATE_OBJECT_WITH_REQUIRED_OTHER",
	StateServerObjectDeleteRAM:                      "STATESERVER_OBJECT_DELETE_RAM",
	StateServerObjectRequestDelete:                  "STATESERVER_OBJECT_DELETE_REQUEST",
	StateServerDeleteAIObjects:                      "STATESERVER_DELETE_AI_OBJECTS",
	StateServerObjectGetAll:                         "STATESERVER_OBJECT_GET_ALL",
	StateServerObjectGetAllResp:                     "STATESERVER_OBJECT_GET_ALL_RESP",
	StateServerObjectSetField:                       "STATESERVER_OBJECT_SET_FIELD",
	StateServerObjectSetLocation:                    "STATESERVER_OBJECT_SET_LOCATION",
	StateServerObjectChangingLocation:               "STATESERVER_OBJECT_CHANGING_LOCATION",
	StateServerObjectEnterLocationWithRequired:      "STATESERVER_OBJECT_ENTER_LOCATION_WITH_REQUIRED",
	StateServerObjectEnterLocationWithRequiredOther: "STATESERVER_OBJECT_ENTER_LOCATION_WITH_REQUIRED_OTHER",
	StateServerObjectGetLocation:                    "STATESERVER_OBJECT_GET_LOCATION",
	StateServerObjectGetLocationResp:                "STATESERVER_OBJECT_GET_LOCATION_RESP",
	StateServerObjectChangingAI:                     "STATESERVER_OBJECT_CHANGING_AI",
	StateServerObjectEnterAIWithRequired:            "STATESERVER_OBJECT_ENTER_AI_WITH_REQUIRED",
	StateServerObjectEnterAIWithRequiredOther:       "STATESERVER_OBJECT_ENTER_AI_WITH_REQUIRED_OTHER",

	DBSSObjectGetActivated:     "DBSS_OBJECT_GET_ACTIVATED",
	DBSSObjectGetActivatedResp: "DBSS_OBJECT_GET_ACTIVATED_RESP",

	DBServerCreateObject:                "DBSERVER_CREATE_OBJECT",
	DBServerCreateObjectResp:            "DBSERVER_CREATE_OBJECT_RESP",
	DBServerObjectGetField:              "DBSERVER_OBJECT_GET_FIELD",
	DBServerObjectGetFieldResp:          "DBSERVER_OBJECT_GET_FIELD_RESP",
	DBServerObjectGetFields:             "DBSERVER_OBJECT_GET_FIELDS",
	DBServerObjectGetFieldsResp:         "DBSERVER_OBJECT_GET_FIELDS_RESP",
	DBServerObjectGetAll:                "DBSERVER_OBJECT_GET_ALL",
	DBServerObjectGetAllResp:            "DBSERVER_OBJECT_GET_ALL_RESP",
	DBServerObjectSetFieldIfEqualsResp:  "DBSERVER_OBJECT_SET_FIELD_IF_EQUALS_RESP",
	DBServerObjectSetFieldsIfEqualsResp: "DBSERVER_OBJECT_SET_FIELDS_IF_EQUALS_RESP",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MSG_%d", uint16(t))
}
