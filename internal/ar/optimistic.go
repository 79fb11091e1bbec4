package ar

// optimistic applies a local change, then persists it. When persist fails the
// captured prior state is restored and the persist error is returned.
func optimistic(apply func() (revert func()), persist func() error) error {
	revert := apply()
	if err := persist(); err != nil {
		if revert != nil {
			revert()
		}
		return err
	}
	return nil
}
