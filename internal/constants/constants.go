// Package constants holds fixed protocol values: ports, frame limits,
// opcodes, and error codes shared across the gate and lobby engines.
package constants

import "time"

// Fixed network ports (spec §6).
const (
	GatePort       = 9500
	TitleAPort     = 9501
	TitleBPort     = 9502
	TitleCPort     = 9503
	TitleDPort     = 9504
	TitleEPort     = 9505
	TitleFPort     = 9506
	TitleGPort     = 9507
)

// Frame limits (spec §4.A).
const (
	// MaxFrameSize is the largest payload a gate or lobby frame may carry.
	MaxFrameSize = 64 * 1024

	// GateFrameHeaderSize is len(2)+opcode(2).
	GateFrameHeaderSize = 4

	// LobbyFrameHeaderSize is len(2)+reserved(2)+seq(2)+reserved(2)+opcode(2).
	LobbyFrameHeaderSize = 10
)

// Connection tuning defaults, overridable from config.
const (
	DefaultIdleTimeout   = 60 * time.Second
	DefaultSendQueueSize = 64
	DefaultWriteTimeout  = 5 * time.Second
)

// Gate opcodes (first space-separated token of a REQUEST_FILTER-style
// text request, spec §4.C; original_source/gate_server.cpp).
const (
	GateRequestFilter  = "REQUEST_FILTER"
	GateHandleListGet  = "HANDLE_LIST_GET"
	GateHandleAdd      = "HANDLE_ADD"
	GateHandleReplace  = "HANDLE_REPLACE"
	GateHandleDelete   = "HANDLE_DELETE"
)

// Gate reply opcodes (wire uint16 values, original_source/gate_server.cpp
// Errors enum + the REQUEST_FILTER envelope opcodes).
const (
	GateReplyFilterBegin  uint16 = 0x3E8
	GateReplyFilterEntry  uint16 = 0x3E9
	GateReplyFilterEnd    uint16 = 0x3EA
	GateReplyHandleList    uint16 = 0x3F2 // HANDLE_LIST_GET reply
	GateReplyHandleAdded  uint16 = 0x3F3
	GateReplyHandleReplaced uint16 = 0x3F4
	GateReplyHandleDeleted uint16 = 0x3F5
	GateReplyError1        uint16 = 0x3FC // generic failure
	GateReplyNameInUse1    uint16 = 0x3FD // ALREADY_EXISTS on add
	GateReplyNameInUse2    uint16 = 0x3FE // ALREADY_EXISTS on replace
	GateReplyError2        uint16 = 0x3FF // meaning undocumented; not sent by this server
)

// Synthetic gate users (spec §4.C).
const (
	SyntheticUserFlycast1 = "flycast1"
	SyntheticUserFlycast2 = "flycast2"
	SyntheticUserDream    = "dream"
)

// Lobby/Title opcodes — client-to-server (spec §4.D table,
// original_source/packet_processor.cpp CLIOpcode enum).
const (
	OpLogin                     uint16 = 0x01
	OpLogin2                    uint16 = 0x02
	OpSendLog                   uint16 = 0x03
	OpEntrLobby                 uint16 = 0x04
	OpDisconnect                uint16 = 0x05
	OpGetLobbies                uint16 = 0x07
	OpGetGames                  uint16 = 0x08
	OpSelectGame                uint16 = 0x09
	OpPing                      uint16 = 0x0A
	OpSearch                    uint16 = 0x0B
	OpGetLicense                uint16 = 0x0C
	OpReconnect                 uint16 = 0x0D
	OpLaunchGameAck              uint16 = 0x0E
	OpGetTeams                  uint16 = 0x0F
	OpRefreshPlayers            uint16 = 0x10
	OpChatLobby                 uint16 = 0x11
	OpSharedMemPlayer           uint16 = 0x1B
	OpSharedMemTeam             uint16 = 0x20
	OpLeaveTeam                 uint16 = 0x21
	OpLaunchRequest             uint16 = 0x22
	OpChatTeam                  uint16 = 0x23
	OpCreateTeam                uint16 = 0x24
	OpJoinTeam                  uint16 = 0x25
	OpSendCtcpMsg                uint16 = 0x26
	OpExtraUserMemAck            uint16 = 0x28
	OpGetExtraUserMem            uint16 = 0x29
	OpRegistExtraUserMemStart    uint16 = 0x2A
	OpRegistExtraUserMemTransfer uint16 = 0x2B
	OpRegistExtraUserMemEnd      uint16 = 0x2C
	OpLeaveLobby                 uint16 = 0x3C
	OpJoinGroup                  uint16 = 0x3F
	OpLaunchGame                 uint16 = 0x65
	OpRefreshUsers               uint16 = 0x67
)

// Lobby/Title opcodes — server-to-client replies this spec names.
const (
	ReplyPing               uint16 = 0x00 // PING reply
	ReplyPlayerListEnd      uint16 = 0x01 // S_PLAYER_LIST_END
	ReplyTeamNameInUse      uint16 = 0x03 // CREATE_TEAM name collision
	ReplyLobbyFull          uint16 = 0x05 // ENTR_LOBBY lobby at capacity
	ReplyLogin              uint16 = 0x11 // LOGIN success
	ReplyTeamMemberJoined   uint16 = 0x29
	ReplyLobbyJoinCreated   uint16 = 0x2A // ENTR_LOBBY newly-created ack
	ReplyChatLobby          uint16 = 0x2D
	ReplyCtcpMsg            uint16 = 0x2E
	ReplyTeamMemberLeft     uint16 = 0x3B
	ReplySharedMemTeam      uint16 = 0x34
	ReplyExtraMemAck        uint16 = 0x4F
	ReplyExtraMemBegin      uint16 = 0x50
	ReplyExtraMemChunk      uint16 = 0x51
	ReplyExtraMemEnd        uint16 = 0x52
	ReplySharedMemPlayer    uint16 = 0x42
	ReplyChatTeam           uint16 = 0x43
	ReplyLaunchGame         uint16 = 0x3E
	ReplyGameServer         uint16 = 0x3D
	ReplyLogin2Ack          uint16 = 0xE1
	ReplyDisconnected       uint16 = 0xE3
	ReplyDisconnectAck      uint16 = 0x16
	ReplySearchTrailer      uint16 = 0xC9
)
