package runner

import "fmt"

func panicAsError(p any) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("pipeline engine panic: %w", err)
	}
	return fmt.Errorf("pipeline engine panic: %v", p)
}
