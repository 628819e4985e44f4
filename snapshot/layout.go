package snapshot

// Record sizes and field offsets of the engine's exported structs. These are
// the wire format and change only together with the engine build.
const (
	RegistersSize   = 68
	CPUStateSize    = 4 + RegistersSize
	DeviceStateSize = 12
	IORequestSize   = 8
	InterruptSize   = 8
	ProcessSize     = 36 + RegistersSize

	// MLFLevels is the number of multi-level feedback ready lists.
	MLFLevels = 6
)

// Registers
const (
	regRIP     = 0
	regGPStart = 4
)

// CPUState
const (
	cpuAvailable = 0
	cpuRegisters = 4
)

// DeviceState
const (
	devOwner    = 0
	devDuration = 4
	devProgress = 8
)

// IORequest and Interrupt
const (
	reqPID      = 0
	reqDuration = 4
	intType     = 0
	intPID      = 4
)

// Process
const (
	procID          = 0
	procNamePtr     = 4
	procArrival     = 8
	procDone        = 12
	procRequired    = 16
	procElapsed     = 20
	procMLFLevel    = 24
	procTimeOnLevel = 28
	procState       = 32
	procRegisters   = 36
)

// Machine snapshot header
const (
	machineNumCores   = 0
	machineNumIO      = 1
	machineClockDelay = 4
	machineCoresPtr   = 8
	machineIOPtr      = 12
	MachineHeaderSize = 16
)

// OS snapshot header
const (
	osProcessCount   = 0
	osProcessPtr     = 4
	osInterruptCount = 8
	osInterruptPtr   = 12
	osReadyCount     = 16
	osReadyPtr       = 20
	osReentryCount   = 24
	osReentryPtr     = 28
	osStepActionPtr  = 32
	osTime           = 36
	osPaused         = 40
	osMLFCount       = 44
	osMLFPtr         = osMLFCount + 4*MLFLevels
	osRequestCount   = osMLFPtr + 4*MLFLevels
	osRequestPtr     = osRequestCount + 4
	osSyscallPtr     = osRequestPtr + 4
	osRunningPtr     = osSyscallPtr + 4
	OSHeaderSize     = osRunningPtr + 4
)

// IdleProcessID marks an empty running-process slot.
const IdleProcessID = 0xFFFFFFFF
