//go:build debug

/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package debug

func init() { Enabled = true }
