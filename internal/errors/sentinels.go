package errors

// Category sentinels for errors.Is checks. EnhancedError.Is matches on
// category, so any built error of the same kind compares equal.
var (
	ErrModelLoad  = sentinel(CategoryModelLoad)
	ErrLabelLoad  = sentinel(CategoryLabelLoad)
	ErrDeviceInit = sentinel(CategoryDeviceInit)
	ErrDeviceRead = sentinel(CategoryDeviceRead)
	ErrInference  = sentinel(CategoryInference)
	ErrValidation = sentinel(CategoryValidation)
	ErrState      = sentinel(CategoryState)
)

func sentinel(category ErrorCategory) *EnhancedError {
	return &EnhancedError{
		Err:       NewStd(string(category)),
		component: ComponentUnknown,
		Category:  category,
		detected:  true,
	}
}
