package vm

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bassosimone/um32/pkg/arena"
)

// snapshot is the gob-serializable capture of a CPU's complete state,
// used only by the opt-in backup feature below. It is a host-level
// operational concern, not a guest-visible capability: the guest has
// no operator to trigger or observe a checkpoint.
type snapshot struct {
	Regs   [NumRegisters]Word
	PC     Word
	Halted bool
	Arena  arena.Snapshot
}

// backupState tracks the opt-in checkpoint feature's directory and
// throttling clock. A CPU with a nil backupState never writes a
// checkpoint: backups are off by default and exist purely as a
// host-operational safety net for long batch runs, not as something
// the guest program can trigger or observe.
type backupState struct {
	dir         string
	last        time.Time
	lastStamped time.Time
}

// EnableBackup turns on periodic host-level checkpointing to dir. It
// must be called before Run. Backups are taken only when the guest
// blocks on Input (opcode 11) — a natural point to pause housekeeping
// work, since the machine is already stalled waiting on the host.
func (c *CPU) EnableBackup(dir string) {
	c.backup = &backupState{dir: dir}
}

// recordBackupPoint is called from the Input handler. It throttles to
// one backup per minute, with an additional timestamped copy every 15
// minutes so a long batch run leaves a trail of recovery points rather
// than just the most recent one.
func (c *CPU) recordBackupPoint() {
	if c.backup == nil {
		return
	}
	if time.Since(c.backup.last) <= time.Minute {
		return
	}
	withTimestamp := time.Since(c.backup.lastStamped) > 15*time.Minute
	c.doBackup(withTimestamp)
	c.backup.last = time.Now()
	if withTimestamp {
		c.backup.lastStamped = c.backup.last
	}
}

func (c *CPU) doBackup(withTimestampFile bool) {
	tmp, err := os.CreateTemp(c.backup.dir, "backup")
	if err != nil {
		return
	}
	defer tmp.Close()

	snap := snapshot{Regs: c.Regs, PC: c.PC, Halted: c.Halted, Arena: c.Arena.Snapshot()}
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		return
	}

	if withTimestampFile {
		tsPath := filepath.Join(c.backup.dir, time.Now().Format("backup.2006-01-02T15:04:05.dat"))
		if ts, err := os.Create(tsPath); err == nil {
			_, _ = tmp.Seek(0, io.SeekStart)
			_, _ = io.Copy(ts, tmp)
			ts.Close()
		}
	}

	backupFile := filepath.Join(c.backup.dir, "backup.dat")
	_ = os.Rename(tmp.Name(), backupFile)
}

// LoadFromBackup reconstructs a CPU from a gob-encoded snapshot
// previously written by the checkpointing that EnableBackup turns on,
// rebinding it to in/out. The
// program counter is left exactly as captured, so resuming continues
// at the instruction in progress when the snapshot was taken.
func LoadFromBackup(r io.Reader, in InputPort, out OutputPort) (*CPU, error) {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("vm: decoding backup: %w", err)
	}
	a := arena.FromSnapshot(snap.Arena)
	return &CPU{
		Regs:   snap.Regs,
		PC:     snap.PC,
		Halted: snap.Halted,
		Arena:  a,
		zero:   a.Zero(),
		In:     in,
		Out:    out,
	}, nil
}
