package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// ReadCR0 returns the current value of the CR0 control register.
func ReadCR0() uint64

// WriteCR0 updates the CR0 control register.
func WriteCR0(value uint64)

// ReadEFER returns the current value of the EFER model-specific register.
func ReadEFER() uint64

// WriteEFER updates the EFER model-specific register.
func WriteEFER(value uint64)
