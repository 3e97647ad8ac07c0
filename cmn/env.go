/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package cmn

import "os"

func lookupEnv(name string) (string, bool) { return os.LookupEnv(name) }
