package config

// Environment variable names understood by Load.
const (
	// GENERAL
	EnvFile    = "AUDIOPOLICY_ENV_FILE"
	LogLevel   = "LOG_LEVEL"
	ConsoleLog = "CONSOLE_LOG"

	// CHANNELS
	DefaultChannel = "AUDIO_DEFAULT_CHANNEL"
	ChannelGrants  = "AUDIO_CHANNEL_GRANTS"
	SweepInterval  = "AUDIO_WINDOW_SWEEP_INTERVAL"

	// QUEUES
	LoopQueueSize   = "LOOP_QUEUE_SIZE"
	NotifyQueueSize = "NOTIFY_QUEUE_SIZE"
	FrameQueueSize  = "FRAME_QUEUE_SIZE"

	// OFFLOAD
	OffloadAudio = "OFFLOAD_AUDIO"
	OffloadVideo = "OFFLOAD_VIDEO"
	ResetTimeout = "OFFLOAD_RESET_TIMEOUT"

	// IPC
	IPCSocketPath   = "IPC_SOCKET_PATH"
	IPCWriteTimeout = "IPC_WRITE_TIMEOUT"

	// HTTP
	HTTPAddress  = "HTTP_ADDRESS"
	EventTimeout = "EVENT_TIMEOUT"
)
