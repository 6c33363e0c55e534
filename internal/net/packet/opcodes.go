package packet

// Client opcodes.
const (
	C_OPCODE_LOGIN    = 10 // [S name][C roster][S mode]
	C_OPCODE_MOVE     = 11 // [F x][F y][F z][F yaw][F pitch]
	C_OPCODE_GAMEMODE = 12 // [S mode]
	C_OPCODE_CHAT     = 13 // [S text]
	C_OPCODE_QUIT     = 14
)

// Server opcodes.
const (
	S_OPCODE_INITPACKET       = 150 // plaintext handshake
	S_OPCODE_LOGIN_OK         = 151 // [D observer id][S name]
	S_OPCODE_SYSTEM_MESSAGE   = 152 // [S text]
	S_OPCODE_ROSTER_ADD       = 153 // [U identity][S name]
	S_OPCODE_ROSTER_REMOVE    = 154 // [U identity]
	S_OPCODE_SPAWN_PLAYER     = 155 // [D entity][U identity][F x][F y][F z][C yaw][C pitch]
	S_OPCODE_ENTITY_METADATA  = 156 // [D entity][C 0xff terminator]
	S_OPCODE_HEAD_ROTATION    = 157 // [D entity][C yaw]
	S_OPCODE_DESTROY_ENTITIES = 158 // [H count][D entity]...
	S_OPCODE_DISCONNECT       = 159 // [S reason]
)

// MetadataEnd terminates an entity metadata list.
const MetadataEnd = 0xff
