package sym

import (
	"testing"
	"unicode/utf8"
)

func TestSymbolToCommandAndCommandToSymbolAreBidirectional(t *testing.T) {
	for symbol, cmd := range SymbolToCommand {
		got, ok := CommandToSymbol[cmd]
		if !ok {
			t.Errorf("SymbolToCommand has %q → %q, but CommandToSymbol has no entry for %q", symbol, cmd, cmd)
			continue
		}
		if got != symbol {
			t.Errorf("bidirectional mismatch: SymbolToCommand[%q] = %q, but CommandToSymbol[%q] = %q", symbol, cmd, cmd, got)
		}
	}
}

func TestMapsHaveSameSize(t *testing.T) {
	if len(SymbolToCommand) != len(CommandToSymbol) {
		t.Errorf("map size mismatch: SymbolToCommand has %d entries, CommandToSymbol has %d",
			len(SymbolToCommand), len(CommandToSymbol))
	}
}

func TestCommandDescriptionsCoversAllCommands(t *testing.T) {
	for cmd := range CommandToSymbol {
		if _, ok := CommandDescriptions[cmd]; !ok {
			t.Errorf("CommandDescriptions missing entry for command %q", cmd)
		}
	}
}

func TestPaletteOrderContainsValidSymbols(t *testing.T) {
	for i, symbol := range PaletteOrder {
		if _, ok := SymbolToCommand[symbol]; !ok {
			t.Errorf("PaletteOrder[%d] = %q is not in SymbolToCommand", i, symbol)
		}
	}
}

func TestSymbolsAreSingleRune(t *testing.T) {
	for _, s := range []string{AM, Job, Cron, DB, Serve, Pulse, PulseOpen, Refresh, Mail, Warehouse} {
		if utf8.RuneCountInString(s) != 1 {
			t.Errorf("symbol %q should be a single rune, got %d", s, utf8.RuneCountInString(s))
		}
	}
}
